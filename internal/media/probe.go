package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/metrics"
)

const probeTimeout = time.Minute

// Probe is the technical metadata of a video.
type Probe struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	Size       int64   `json:"size"`
	VideoCodec string  `json:"videoCodec,omitempty"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Prober runs ffprobe.
type Prober struct {
	ffprobe string
}

// NewProber creates a Prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobe: ffprobePath}
}

// Probe reads the metadata of the video at path. Failures wrap
// apperrors.ErrProbe.
func (p *Prober) Probe(ctx context.Context, path string) (*Probe, error) {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.ProbeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		status = "error"
		return nil, fmt.Errorf("%w: ffprobe %s: %v - %s", apperrors.ErrProbe, path, err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		status = "error"
		return nil, fmt.Errorf("%w: parse ffprobe output for %s: %v", apperrors.ErrProbe, path, err)
	}

	info := &Probe{}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.Size, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.VideoCodec = s.CodecName
		info.FPS = parseFrameRate(s.AvgFrameRate)
		if info.FPS == 0 {
			info.FPS = parseFrameRate(s.RFrameRate)
		}
		break
	}

	if info.Size == 0 {
		if fi, err := os.Stat(path); err == nil {
			info.Size = fi.Size()
		}
	}

	if info.Width == 0 && info.Height == 0 && info.Duration == 0 {
		status = "error"
		return nil, fmt.Errorf("%w: no video stream in %s", apperrors.ErrProbe, path)
	}

	logging.Debug("Probed %s: %.2fs %dx%d @ %.2ffps", path, info.Duration, info.Width, info.Height, info.FPS)
	return info, nil
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// CheckBinaries runs each binary with -version and returns the first line
// of output per binary. A binary that cannot run yields an error wrapping
// apperrors.ErrMissingDependency.
func CheckBinaries(ctx context.Context, binaries ...string) (map[string]string, error) {
	versions := make(map[string]string, len(binaries))
	for _, bin := range binaries {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		out, err := exec.CommandContext(ctx, bin, "-version").Output()
		cancel()
		if err != nil {
			return versions, fmt.Errorf("%w: %s is not runnable: %v", apperrors.ErrMissingDependency, bin, err)
		}
		line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
		versions[bin] = strings.TrimSpace(line)
	}
	return versions, nil
}
