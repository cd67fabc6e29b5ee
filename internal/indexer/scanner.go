package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/matching"
	"media-vault/internal/mediatypes"
	"media-vault/internal/metrics"
	"media-vault/internal/queue"
	"media-vault/internal/workers"
)

// maxWalkWorkers caps the automatic walker size; NFS mounts degrade past it.
const maxWalkWorkers = 8

// Catalog is what the scanner needs from the catalog.
type Catalog interface {
	KnownPaths(ctx context.Context) (map[string]struct{}, error)
	PruneReferences(ctx context.Context) (int, error)
}

// Queue is what the scanner needs from the ingestion queue.
type Queue interface {
	Paths() (map[string]struct{}, error)
	Push(item *queue.Item) error
	Kick()
}

// Extractor pre-fills queue items with entity ids found in their paths.
type Extractor interface {
	ExtractActors(ctx context.Context, text string) ([]string, error)
	ExtractLabels(ctx context.Context, text string) ([]string, error)
	ExtractStudio(ctx context.Context, text string) (string, error)
}

// Config holds scanner settings.
type Config struct {
	VideoPaths []string
	ImagePaths []string
	Excludes   []string
	// Workers sizes the walker; zero picks a count from the CPUs.
	Workers int
	// Interval between scheduled scans; zero disables scheduling.
	Interval  time.Duration
	OnStartup bool
}

// Result summarizes one scan.
type Result struct {
	VideosFound      int           `json:"videosFound"`
	VideosQueued     int           `json:"videosQueued"`
	ImagesFound      int           `json:"imagesFound"`
	ImagesQueued     int           `json:"imagesQueued"`
	ReferencesPruned int           `json:"referencesPruned"`
	Duration         time.Duration `json:"duration"`
}

// Status is the scanner's health information.
type Status struct {
	Scanning   bool      `json:"scanning"`
	StartTime  time.Time `json:"startTime"`
	Uptime     string    `json:"uptime"`
	LastScan   time.Time `json:"lastScan,omitempty"`
	NextScan   time.Time `json:"nextScan,omitempty"`
	LastResult *Result   `json:"lastResult,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// Scanner discovers new library files and queues them for ingestion.
type Scanner struct {
	cfg       Config
	walkerCfg WalkerConfig
	catalog   Catalog
	queue     Queue
	extract   Extractor

	mu         sync.Mutex
	scanning   bool
	startTime  time.Time
	lastScan   time.Time
	lastResult *Result
	lastErr    error

	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScanner creates a scanner. extract may be nil to queue items without
// pre-filled entities.
func NewScanner(cfg Config, catalog Catalog, q Queue, extract Extractor) (*Scanner, error) {
	excludes, err := CompileExcludes(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	wc := DefaultWalkerConfig()
	wc.NumWorkers = workers.Resolve(cfg.Workers, workers.ForIO, maxWalkWorkers)
	wc.Excludes = excludes

	return &Scanner{
		cfg:       cfg,
		walkerCfg: wc,
		catalog:   catalog,
		queue:     q,
		extract:   extract,
		startTime: time.Now(),
	}, nil
}

// Start schedules periodic scans and runs the startup scan in the
// background when configured.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.cfg.Interval > 0 {
		s.cron = cron.New()
		id, err := s.cron.AddFunc("@every "+s.cfg.Interval.String(), s.scheduledScan)
		if err != nil {
			return fmt.Errorf("schedule scans every %v: %w", s.cfg.Interval, err)
		}
		s.entryID = id
		s.cron.Start()
		logging.Info("Library scans scheduled every %v", s.cfg.Interval)
	}

	if s.cfg.OnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			logging.Info("Starting initial scan in background...")
			if _, err := s.Scan(s.ctx); err != nil && !errors.Is(err, apperrors.ErrScanInProgress) {
				logging.Error("Initial scan error: %v", err)
			}
		}()
	}
	return nil
}

// Stop halts scheduling and waits for a running scan to return.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
}

func (s *Scanner) scheduledScan() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.Scan(ctx); err != nil {
		if errors.Is(err, apperrors.ErrScanInProgress) {
			logging.Info("Scan already in progress, skipping scheduled run")
			return
		}
		logging.Error("Scheduled scan failed: %v", err)
	}
}

// TriggerScan starts a scan in the background. It fails with
// ErrScanInProgress when a scan is already running.
func (s *Scanner) TriggerScan() error {
	if !s.tryStartScan() {
		return apperrors.ErrScanInProgress
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.scan(ctx); err != nil {
			logging.Error("Triggered scan failed: %v", err)
		}
	}()
	return nil
}

// Scan walks the library and queues new files. Video discovery completes
// and the queue is kicked before image discovery starts.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if !s.tryStartScan() {
		return nil, apperrors.ErrScanInProgress
	}
	return s.scan(ctx)
}

// scan runs a scan that tryStartScan has already claimed.
func (s *Scanner) scan(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = &Result{}

	metrics.ScanInProgress.Set(1)
	defer func() {
		metrics.ScanInProgress.Set(0)
		res.Duration = time.Since(start)
		metrics.ScanDuration.Observe(res.Duration.Seconds())
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.ScanRunsTotal.WithLabelValues(status).Inc()
		s.finishScan(res, err)
	}()

	logging.Info("Starting library scan...")

	known, err := s.catalog.KnownPaths(ctx)
	if err != nil {
		return res, fmt.Errorf("load known paths: %w", err)
	}
	if known == nil {
		known = make(map[string]struct{})
	}
	queued, err := s.queue.Paths()
	if err != nil {
		return res, fmt.Errorf("load queued paths: %w", err)
	}
	for p := range queued {
		known[p] = struct{}{}
	}

	res.VideosFound, res.VideosQueued, err = s.discover(ctx, mediatypes.KindVideo, s.cfg.VideoPaths, known)
	if err != nil {
		return res, err
	}
	if res.VideosQueued > 0 {
		s.queue.Kick()
	}

	res.ImagesFound, res.ImagesQueued, err = s.discover(ctx, mediatypes.KindImage, s.cfg.ImagePaths, known)
	if err != nil {
		return res, err
	}
	if res.ImagesQueued > 0 {
		s.queue.Kick()
	}

	pruned, err := s.catalog.PruneReferences(ctx)
	if err != nil {
		logging.Warn("Pruning references failed: %v", err)
	} else {
		res.ReferencesPruned = pruned
	}

	metrics.ScanLastRunTimestamp.Set(float64(time.Now().Unix()))
	logging.Info("Scan complete in %v: %d/%d videos and %d/%d images queued, %d references pruned",
		time.Since(start).Round(time.Millisecond),
		res.VideosQueued, res.VideosFound, res.ImagesQueued, res.ImagesFound, res.ReferencesPruned)
	return res, nil
}

// discover walks roots for kind and pushes every file not in known.
func (s *Scanner) discover(ctx context.Context, kind mediatypes.Kind, roots []string, known map[string]struct{}) (found, queued int, err error) {
	if len(roots) == 0 {
		return 0, 0, nil
	}

	paths, err := NewWalker(kind, s.walkerCfg).Walk(ctx, roots)
	if err != nil {
		return len(paths), 0, fmt.Errorf("walk %s paths: %w", kind, err)
	}
	metrics.ScanFilesDiscovered.WithLabelValues(string(kind)).Add(float64(len(paths)))

	for _, p := range paths {
		if ctx.Err() != nil {
			return len(paths), queued, ctx.Err()
		}
		if _, ok := known[p]; ok {
			continue
		}

		item := queue.NewItem(kind, p)
		s.prefill(ctx, item)
		if err := s.queue.Push(item); err != nil {
			return len(paths), queued, fmt.Errorf("queue %s: %w", p, err)
		}
		known[p] = struct{}{}
		queued++
		metrics.ScanFilesEnqueued.WithLabelValues(string(kind)).Inc()
	}
	return len(paths), queued, nil
}

// prefill stores the entities found in the item's path. Extraction errors
// leave the fields empty; the pipeline extracts again later.
func (s *Scanner) prefill(ctx context.Context, item *queue.Item) {
	if s.extract == nil {
		return
	}
	text := matching.PathText(item.Path)

	var err error
	if item.Actors, err = s.extract.ExtractActors(ctx, text); err != nil {
		logging.Debug("Actor extraction for %s failed: %v", item.Path, err)
	}
	if item.Labels, err = s.extract.ExtractLabels(ctx, text); err != nil {
		logging.Debug("Label extraction for %s failed: %v", item.Path, err)
	}
	if item.Studio, err = s.extract.ExtractStudio(ctx, text); err != nil {
		logging.Debug("Studio extraction for %s failed: %v", item.Path, err)
	}
}

// tryStartScan claims the scanner, returns false if a scan is in progress.
func (s *Scanner) tryStartScan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanning {
		return false
	}
	s.scanning = true
	return true
}

// finishScan records the outcome and releases the scanner.
func (s *Scanner) finishScan(res *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scanning = false
	s.lastScan = time.Now()
	s.lastResult = res
	s.lastErr = err
}

// Scanning reports whether a scan is running.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Status returns health information.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Scanning:   s.scanning,
		StartTime:  s.startTime,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		LastScan:   s.lastScan,
		LastResult: s.lastResult,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.cron != nil {
		st.NextScan = s.cron.Entry(s.entryID).Next
	}
	return st
}
