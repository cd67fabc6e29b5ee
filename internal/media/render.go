package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-vault/internal/logging"
	"media-vault/internal/metrics"
)

const ffmpegTimeout = 2 * time.Minute

// Thumbnail is one extracted still.
type Thumbnail struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Timestamp string `json:"timestamp"`
}

// Renderer extracts still frames with ffmpeg.
type Renderer struct {
	ffmpeg       string
	thumbDir     string
	previewDir   string
	thumbWidth   int
	previewWidth int
}

// RendererConfig configures a Renderer.
type RendererConfig struct {
	FFmpeg       string
	ThumbnailDir string
	PreviewDir   string
	ThumbWidth   int
	PreviewWidth int
}

// NewRenderer creates a Renderer.
func NewRenderer(cfg RendererConfig) *Renderer {
	return &Renderer{
		ffmpeg:       cfg.FFmpeg,
		thumbDir:     cfg.ThumbnailDir,
		previewDir:   cfg.PreviewDir,
		thumbWidth:   cfg.ThumbWidth,
		previewWidth: cfg.PreviewWidth,
	}
}

// GenerateThumbnails extracts one frame per policy timestamp. A failed
// frame is logged and skipped; the error return is reserved for context
// cancellation and an unusable output directory.
func (r *Renderer) GenerateThumbnails(ctx context.Context, sceneID, path string, duration float64, policy ThumbnailPolicy) ([]Thumbnail, error) {
	if err := os.MkdirAll(r.thumbDir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}

	timestamps := policy.Timestamps(duration)
	thumbs := make([]Thumbnail, 0, len(timestamps))

	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return thumbs, err
		}

		out := filepath.Join(r.thumbDir, fmt.Sprintf("%s-%03d.jpg", sceneID, i+1))
		start := time.Now()
		err := r.extractFrame(ctx, path, ts, r.thumbWidth, out)
		metrics.ThumbnailDuration.WithLabelValues("scene").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ThumbnailsGenerated.WithLabelValues("scene", "error").Inc()
			logging.Warn("Thumbnail %d/%d for %s at %ss failed: %v", i+1, len(timestamps), path, ts, err)
			continue
		}

		fi, err := os.Stat(out)
		if err != nil {
			metrics.ThumbnailsGenerated.WithLabelValues("scene", "error").Inc()
			logging.Warn("Thumbnail %s missing after ffmpeg: %v", out, err)
			continue
		}
		metrics.ThumbnailsGenerated.WithLabelValues("scene", "success").Inc()
		thumbs = append(thumbs, Thumbnail{Path: out, Size: fi.Size(), Timestamp: ts})
	}

	if len(thumbs) == 0 {
		logging.Warn("No thumbnails generated for %s", path)
	}
	return thumbs, nil
}

// GeneratePreview extracts the middle frame of the video at preview size
// and returns its path.
func (r *Renderer) GeneratePreview(ctx context.Context, sceneID, path string, duration float64) (string, error) {
	if err := os.MkdirAll(r.previewDir, 0o755); err != nil {
		return "", fmt.Errorf("create preview dir: %w", err)
	}

	out := filepath.Join(r.previewDir, sceneID+".jpg")
	ts := ThumbnailPolicy{Count: 1}.Timestamps(duration)[0]

	start := time.Now()
	err := r.extractFrame(ctx, path, ts, r.previewWidth, out)
	metrics.ThumbnailDuration.WithLabelValues("preview").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailsGenerated.WithLabelValues("preview", "error").Inc()
		return "", fmt.Errorf("preview for %s: %w", path, err)
	}
	metrics.ThumbnailsGenerated.WithLabelValues("preview", "success").Inc()
	return out, nil
}

func (r *Renderer) extractFrame(ctx context.Context, path, ts string, width int, out string) error {
	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", ts,
		"-i", path,
		"-vframes", "1",
	}
	if width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", width))
	}
	args = append(args, "-q:v", "2", "-y", out)

	output, err := exec.CommandContext(ctx, r.ffmpeg, args...).CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %v", ffmpegTimeout)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
