package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/metrics"
	"media-vault/internal/startup"
	"media-vault/internal/storeclient"
)

// Helper names.
const (
	RecordStore = "record-store"
	Search      = "search"
)

// helperClient is the part of the helper API the supervisor needs.
type helperClient interface {
	Version(ctx context.Context) (string, bool)
	Reset(ctx context.Context) error
	BaseURL() string
}

// Options tune how a helper is started.
type Options struct {
	BinDir       string
	ReadyTimeout time.Duration
	SettleDelay  time.Duration
	// GOOS and GOARCH select the release asset; empty means the running
	// platform.
	GOOS   string
	GOARCH string
}

// Helper manages one helper binary and its process.
type Helper struct {
	name   string
	cfg    startup.HelperConfig
	opts   Options
	client helperClient
	http   *http.Client
	log    zerolog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}
}

// NewHelper creates a Helper. name selects the client API and must be
// RecordStore or Search.
func NewHelper(name string, cfg startup.HelperConfig, opts Options) *Helper {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.GOARCH == "" {
		opts.GOARCH = runtime.GOARCH
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	var client helperClient
	if name == Search {
		client = storeclient.NewSearchIndex(baseURL)
	} else {
		client = storeclient.NewDocStore(baseURL)
	}

	return &Helper{
		name:    name,
		cfg:     cfg,
		opts:    opts,
		client:  client,
		http:    &http.Client{Timeout: 10 * time.Minute},
		log:     logging.With("helper-" + name),
		readyCh: make(chan struct{}),
	}
}

// Name returns the helper name.
func (h *Helper) Name() string { return h.name }

func (h *Helper) String() string { return "helper-" + h.name }

// BaseURL is the address the helper listens on.
func (h *Helper) BaseURL() string { return h.client.BaseURL() }

// BinaryPath is where the helper binary lives.
func (h *Helper) BinaryPath() string {
	bin := h.cfg.Binary
	if bin == "" {
		bin = h.name
	}
	if h.opts.GOOS == "windows" && !strings.HasSuffix(bin, ".exe") {
		bin += ".exe"
	}
	if filepath.IsAbs(bin) {
		return bin
	}
	return filepath.Join(h.opts.BinDir, bin)
}

// Ready is closed once the helper has answered for the first time.
func (h *Helper) Ready() <-chan struct{} { return h.readyCh }

// EnsureExists downloads the helper binary when it is missing. It reports
// whether a download happened.
func (h *Helper) EnsureExists(ctx context.Context) (bool, error) {
	dst := h.BinaryPath()
	if info, err := os.Stat(dst); err == nil && !info.IsDir() {
		return false, nil
	}

	platform := h.opts.GOOS + "/" + h.opts.GOARCH
	asset, ok := h.cfg.Assets[platform]
	if !ok || asset == "" {
		return false, fmt.Errorf("%w: no %s release for %s", apperrors.ErrUnsupportedPlatform, h.name, platform)
	}
	if h.cfg.ReleaseURL == "" {
		return false, fmt.Errorf("%w: %s has no release url configured", apperrors.ErrDownload, h.name)
	}

	url := strings.TrimRight(h.cfg.ReleaseURL, "/") + "/" + h.cfg.Version + "/" + asset
	h.log.Info().Str("url", url).Str("path", dst).Msg("downloading helper binary")

	if err := h.download(ctx, url, dst); err != nil {
		metrics.HelperDownloadsTotal.WithLabelValues(h.name, "failed").Inc()
		return false, fmt.Errorf("%w: %s: %v", apperrors.ErrDownload, h.name, err)
	}
	metrics.HelperDownloadsTotal.WithLabelValues(h.name, "success").Inc()
	return true, nil
}

func (h *Helper) download(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Version returns the running helper's version, or false when it cannot
// be reached.
func (h *Helper) Version(ctx context.Context) (string, bool) {
	return h.client.Version(ctx)
}

// ResetState wipes everything the helper stores.
func (h *Helper) ResetState(ctx context.Context) error {
	if err := h.client.Reset(ctx); err != nil {
		return fmt.Errorf("reset %s: %w", h.name, err)
	}
	h.log.Warn().Msg("helper state reset")
	return nil
}

// Spawn starts the helper and returns once it is ready: it printed its
// first line of output or answered a version request. The settle delay is
// waited out before returning.
func (h *Helper) Spawn(ctx context.Context) (*Process, error) {
	bin := h.BinaryPath()
	cmd := exec.CommandContext(ctx, bin, "--port", strconv.Itoa(h.cfg.Port))
	cmd.WaitDelay = 2 * time.Second

	firstLine := make(chan struct{})
	var once sync.Once
	cmd.Stdout = &lineWriter{onLine: func(line string) {
		once.Do(func() { close(firstLine) })
		h.log.Debug().Str("stream", "stdout").Msg(line)
	}}
	cmd.Stderr = &lineWriter{onLine: func(line string) {
		h.log.Warn().Str("stream", "stderr").Msg(line)
	}}

	if err := cmd.Start(); err != nil {
		metrics.HelperSpawnsTotal.WithLabelValues(h.name, "failed").Inc()
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	proc := newProcess(cmd)

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	probed := make(chan struct{})
	go h.probe(probeCtx, probed)

	timer := time.NewTimer(h.opts.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-firstLine:
	case <-probed:
	case <-proc.Done():
		metrics.HelperSpawnsTotal.WithLabelValues(h.name, "failed").Inc()
		return nil, fmt.Errorf("%s exited before becoming ready: %v", h.name, proc.Err())
	case <-timer.C:
		proc.Stop()
		metrics.HelperSpawnsTotal.WithLabelValues(h.name, "failed").Inc()
		return nil, fmt.Errorf("%s not ready after %v", h.name, h.opts.ReadyTimeout)
	case <-ctx.Done():
		proc.Stop()
		return nil, ctx.Err()
	}
	stopProbe()

	if h.opts.SettleDelay > 0 {
		select {
		case <-time.After(h.opts.SettleDelay):
		case <-ctx.Done():
			proc.Stop()
			return nil, ctx.Err()
		}
	}

	metrics.HelperSpawnsTotal.WithLabelValues(h.name, "success").Inc()
	h.log.Info().Int("pid", proc.Pid()).Int("port", h.cfg.Port).Msg("helper ready")
	return proc, nil
}

// probe closes done once the helper answers a version request.
func (h *Helper) probe(ctx context.Context, done chan<- struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			_, ok := h.client.Version(pctx)
			cancel()
			if ok {
				close(done)
				return
			}
		}
	}
}

// Serve runs the helper until ctx is canceled, returning an error when the
// process dies so that the supervisor restarts it.
func (h *Helper) Serve(ctx context.Context) error {
	proc, err := h.Spawn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	metrics.HelperUp.WithLabelValues(h.name).Set(1)
	defer metrics.HelperUp.WithLabelValues(h.name).Set(0)
	h.readyOnce.Do(func() { close(h.readyCh) })

	select {
	case <-ctx.Done():
		proc.Stop()
		return ctx.Err()
	case <-proc.Done():
		if err := proc.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s exited: %w", h.name, err)
		}
		return fmt.Errorf("%s exited", h.name)
	}
}
