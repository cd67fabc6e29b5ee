package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"golang.org/x/sync/errgroup"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/startup"
)

// Supervisor owns the enabled helpers and the suture tree running them.
type Supervisor struct {
	helpers  []*Helper
	versions map[string]string
	attempts int
	timeout  time.Duration

	cancel context.CancelFunc
	errc   <-chan error
}

// New creates a Supervisor for the helpers enabled in cfg. binDir is where
// helper binaries are kept.
func New(cfg startup.HelpersConfig, binDir string) *Supervisor {
	opts := Options{
		BinDir:       binDir,
		ReadyTimeout: cfg.ReadyTimeout,
		SettleDelay:  cfg.SettleDelay,
	}
	s := &Supervisor{
		versions: make(map[string]string),
		attempts: cfg.SpawnAttempts,
		timeout:  cfg.ReadyTimeout,
	}
	if cfg.RecordStore.Enabled {
		s.Add(NewHelper(RecordStore, cfg.RecordStore, opts), cfg.RecordStore.Version)
	}
	if cfg.Search.Enabled {
		s.Add(NewHelper(Search, cfg.Search, opts), cfg.Search.Version)
	}
	return s
}

// Add registers a helper and the version it is expected to report.
func (s *Supervisor) Add(h *Helper, version string) {
	s.helpers = append(s.helpers, h)
	s.versions[h.Name()] = version
}

// Helpers returns the managed helpers.
func (s *Supervisor) Helpers() []*Helper { return s.helpers }

// Helper returns the helper called name, or nil.
func (s *Supervisor) Helper(name string) *Helper {
	for _, h := range s.helpers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// Names lists the managed helpers.
func (s *Supervisor) Names() []string {
	names := make([]string, len(s.helpers))
	for i, h := range s.helpers {
		names[i] = h.Name()
	}
	return names
}

// EnsureBinaries makes sure every helper binary is present, downloading
// missing ones concurrently.
func (s *Supervisor) EnsureBinaries(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range s.helpers {
		g.Go(func() error {
			downloaded, err := h.EnsureExists(gctx)
			if err != nil {
				return err
			}
			if downloaded {
				logging.Info("Downloaded %s to %s", h.Name(), h.BinaryPath())
			}
			return nil
		})
	}
	return g.Wait()
}

// Start ensures the binaries, starts every helper under supervision and
// waits until all of them are ready. A helper that is not ready within
// spawn attempts times the ready timeout fails with ErrMissingDependency.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.helpers) == 0 {
		return nil
	}
	if err := s.EnsureBinaries(ctx); err != nil {
		return err
	}

	handler := &sutureslog.Handler{Logger: logging.Slog("supervisor")}
	tree := suture.New("helpers", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: float64(max(s.attempts, 1)),
		FailureDecay:     30,
		FailureBackoff:   5 * time.Second,
		Timeout:          10 * time.Second,
	})
	for _, h := range s.helpers {
		tree.Add(h)
	}

	treeCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.errc = tree.ServeBackground(treeCtx)

	deadline := time.Duration(max(s.attempts, 1)) * s.timeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for _, h := range s.helpers {
		select {
		case <-h.Ready():
		case <-timer.C:
			s.Stop()
			return fmt.Errorf("%w: %s did not become ready within %v", apperrors.ErrMissingDependency, h.Name(), deadline)
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		}
		s.checkVersion(ctx, h)
	}
	return nil
}

// checkVersion warns when a helper reports an unexpected version; the
// helper keeps running.
func (s *Supervisor) checkVersion(ctx context.Context, h *Helper) {
	want := s.versions[h.Name()]
	got, ok := h.Version(ctx)
	switch {
	case !ok:
		logging.Warn("Helper %s did not report a version", h.Name())
	case want != "" && got != want:
		logging.Warn("Helper %s runs version %s, expected %s; continuing in degraded mode", h.Name(), got, want)
	default:
		logging.Info("Helper %s version %s", h.Name(), got)
	}
}

// ResetState wipes the data of every helper.
func (s *Supervisor) ResetState(ctx context.Context) error {
	var errs []error
	for _, h := range s.helpers {
		if err := h.ResetState(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop shuts the helpers down and waits for the tree to exit.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if err := <-s.errc; err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("Helper supervisor stopped: %v", err)
	}
	s.cancel = nil
}
