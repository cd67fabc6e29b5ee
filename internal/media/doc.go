// Package media inspects and renders media files.
//
// Prober wraps ffprobe to read duration, dimensions and frame rate of a
// video. Renderer wraps ffmpeg to extract still thumbnails and a preview
// frame. Pictures are decoded and resized in-process with the imaging
// library, and Checksum fingerprints files with BLAKE2b-256.
package media
