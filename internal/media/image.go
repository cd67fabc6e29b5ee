package media

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"media-vault/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// MaxImageDimension bounds the width and height of decoded images.
	MaxImageDimension = 4096

	// MaxImagePixels bounds width*height of decoded images (~80MB as RGBA).
	MaxImagePixels = 20_000_000
)

// constrainedSize scales width x height down to fit maxDimension and
// maxPixels, keeping the aspect ratio. ok is false when no scaling is
// needed.
func constrainedSize(width, height, maxDimension, maxPixels int) (w, h int, ok bool) {
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return width, height, false
	}

	w, h = width, height
	if w > maxDimension || h > maxDimension {
		if w > h {
			w, h = maxDimension, h*maxDimension/w
		} else {
			w, h = w*maxDimension/h, maxDimension
		}
	}
	if w*h > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(w*h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return w, h, true
}

// LoadImageConstrained decodes an image with EXIF orientation applied and
// downscales it when it exceeds the given limits.
func LoadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	b := img.Bounds()
	w, h, scale := constrainedSize(b.Dx(), b.Dy(), maxDimension, maxPixels)
	if !scale {
		return img, nil
	}

	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// ImageDimensions holds image width, height and file size.
type ImageDimensions struct {
	Width  int
	Height int
	Size   int64
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	dims := &ImageDimensions{Width: config.Width, Height: config.Height}
	if fi, err := file.Stat(); err == nil {
		dims.Size = fi.Size()
	}
	return dims, nil
}

// ResizeImage writes a copy of src fitted within size x size pixels to dst.
// The output format follows dst's extension.
func ResizeImage(src, dst string, size int) error {
	img, err := LoadImageConstrained(src, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return fmt.Errorf("load %s: %w", src, err)
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("save %s: %w", dst, err)
	}
	return nil
}
