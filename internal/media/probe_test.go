package media

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/crypto/blake2b"

	"media-vault/internal/apperrors"
)

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProberProbe(t *testing.T) {
	ffprobe := writeScript(t, "ffprobe", `cat <<'JSON'
{"format":{"duration":"12.5","size":"2048"},
 "streams":[{"codec_type":"audio","codec_name":"aac"},
            {"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"avg_frame_rate":"30000/1001"}]}
JSON
`)

	info, err := NewProber(ffprobe).Probe(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Duration != 12.5 || info.Width != 1920 || info.Height != 1080 || info.Size != 2048 {
		t.Errorf("Probe() = %+v", info)
	}
	if info.FPS < 29.9 || info.FPS > 30 {
		t.Errorf("FPS = %v, want ~29.97", info.FPS)
	}
	if info.VideoCodec != "h264" {
		t.Errorf("VideoCodec = %q", info.VideoCodec)
	}
}

func TestProberProbeErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"non-zero exit", "echo broken >&2\nexit 1\n"},
		{"invalid json", "echo not-json\n"},
		{"no streams", `echo '{"format":{},"streams":[]}'` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ffprobe := writeScript(t, "ffprobe", tt.script)
			_, err := NewProber(ffprobe).Probe(context.Background(), "/videos/clip.mp4")
			if !errors.Is(err, apperrors.ErrProbe) {
				t.Errorf("Probe() error = %v, want ErrProbe", err)
			}
		})
	}
}

func TestCheckBinaries(t *testing.T) {
	ok := writeScript(t, "ffmpeg", "echo 'ffmpeg version 6.1 Copyright'\necho 'built with gcc'\n")

	versions, err := CheckBinaries(context.Background(), ok)
	if err != nil {
		t.Fatalf("CheckBinaries() error = %v", err)
	}
	if versions[ok] != "ffmpeg version 6.1 Copyright" {
		t.Errorf("version = %q", versions[ok])
	}

	_, err = CheckBinaries(context.Background(), ok, filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, apperrors.ErrMissingDependency) {
		t.Errorf("CheckBinaries() error = %v, want ErrMissingDependency", err)
	}
}

func TestRendererGenerateThumbnails(t *testing.T) {
	// The fake ffmpeg writes its last argument, failing for the 50s frame.
	ffmpeg := writeScript(t, "ffmpeg", `for last; do :; done
case "$*" in *"-ss 50 "*) echo boom >&2; exit 1;; esac
echo frame > "$last"
`)
	dir := t.TempDir()
	r := NewRenderer(RendererConfig{
		FFmpeg:       ffmpeg,
		ThumbnailDir: filepath.Join(dir, "thumbs"),
		PreviewDir:   filepath.Join(dir, "previews"),
		ThumbWidth:   320,
		PreviewWidth: 640,
	})

	policy := ThumbnailPolicy{Count: 4, StartPercentage: 0, EndPercentage: 100}
	thumbs, err := r.GenerateThumbnails(context.Background(), "sc_1", "/v/clip.mp4", 100, policy)
	if err != nil {
		t.Fatalf("GenerateThumbnails() error = %v", err)
	}
	if len(thumbs) != 3 {
		t.Fatalf("got %d thumbnails, want 3 (one frame fails)", len(thumbs))
	}
	for _, th := range thumbs {
		if th.Timestamp == "50" {
			t.Errorf("failed frame should be skipped: %+v", th)
		}
		if th.Size == 0 {
			t.Errorf("thumbnail %s has zero size", th.Path)
		}
	}

	preview, err := r.GeneratePreview(context.Background(), "sc_1", "/v/clip.mp4", 30)
	if err != nil {
		t.Fatalf("GeneratePreview() error = %v", err)
	}
	if _, err := os.Stat(preview); err != nil {
		t.Errorf("preview not written: %v", err)
	}
}

func TestChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	content := []byte("hello media vault")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	sum := blake2b.Sum256(content)
	want := hex.EncodeToString(sum[:])

	got, err := Checksum(path)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	if got != want {
		t.Errorf("Checksum() = %s, want %s", got, want)
	}

	if _, err := Checksum(path + ".missing"); err == nil {
		t.Error("Checksum() of missing file should fail")
	}
}
