package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"media-vault/internal/database"
	"media-vault/internal/filesystem"
	"media-vault/internal/indexer"
	"media-vault/internal/logging"
	"media-vault/internal/matching"
	"media-vault/internal/media"
	"media-vault/internal/memory"
	"media-vault/internal/metrics"
	"media-vault/internal/plugins"
	"media-vault/internal/queue"
	"media-vault/internal/startup"
	"media-vault/internal/storeclient"
	"media-vault/internal/supervisor"
)

const (
	backendSQLite = "sqlite"
	backendHelper = "helper"

	collectInterval = 30 * time.Second
)

// Service owns the ingestion components.
type Service struct {
	cfg *startup.Config

	db         *database.Database
	catalog    *database.Catalog
	search     *storeclient.SearchIndex
	queueStore *queue.Store
	queue      *queue.Queue
	scanner    *indexer.Scanner
	runner     *plugins.Runner
	watcher    *plugins.Watcher
	collector  *metrics.Collector
	memory     *memory.Monitor

	cancel context.CancelFunc
	errc   <-chan error
}

// New builds the service. helpers must already be started when the
// catalog or search index live in helper services; it may be nil
// otherwise.
func New(ctx context.Context, cfg *startup.Config, helpers *supervisor.Supervisor) (*Service, error) {
	s := &Service{cfg: cfg}
	if err := s.build(ctx, helpers); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, helpers *supervisor.Supervisor) error {
	cfg := s.cfg

	start := time.Now()
	store, err := s.openStore(ctx, helpers)
	if err != nil {
		return err
	}
	s.catalog = database.NewCatalog(store)
	if err := s.catalog.Init(ctx); err != nil {
		return fmt.Errorf("initialize catalog: %w", err)
	}
	startup.LogStoreInit(cfg.Store.Backend, time.Since(start))

	if cfg.Helpers.Search.Enabled && helpers != nil {
		if h := helpers.Helper(supervisor.Search); h != nil {
			s.search = storeclient.NewSearchIndex(h.BaseURL())
		}
	}

	registry, err := plugins.NewRegistry(cfg.Plugins)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	s.runner = plugins.NewRunner(registry, cfg.Plugins)
	if cfg.Plugins.Enabled && cfg.Plugins.Watch {
		if s.watcher, err = plugins.NewWatcher(registry); err != nil {
			logging.Warn("Plugin hot reload disabled: %v", err)
			s.watcher = nil
		}
	}

	extractor := matching.NewExtractor(s.catalog, cfg.Matching.IgnoreSingleNames)

	s.queueStore, err = queue.OpenStore(cfg.QueueDir())
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	s.queue = queue.New(s.queueStore, queue.NewPipeline(s.pipelineConfig(), s.pipelineDeps(extractor)))
	s.memory = memory.NewMonitor(memory.DefaultConfig())
	s.queue.SetGate(s.memory)

	pending, err := s.queueStore.Len()
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	startup.LogQueueInit(pending)

	s.scanner, err = indexer.NewScanner(indexer.Config{
		VideoPaths: cfg.Library.VideoPaths,
		ImagePaths: cfg.Library.ImagePaths,
		Excludes:   cfg.Library.Excludes,
		Workers:    cfg.Library.Workers,
		Interval:   cfg.Library.ScanInterval,
		OnStartup:  cfg.Library.ScanOnStartup,
	}, s.catalog, s.queue, extractor)
	if err != nil {
		return fmt.Errorf("create scanner: %w", err)
	}

	s.collector = metrics.NewCollector(s.catalog, s.queueStore, collectInterval)
	return nil
}

func (s *Service) openStore(ctx context.Context, helpers *supervisor.Supervisor) (database.DocStore, error) {
	switch s.cfg.Store.Backend {
	case backendHelper:
		if helpers == nil {
			return nil, errors.New("store backend helper needs the record store helper")
		}
		h := helpers.Helper(supervisor.RecordStore)
		if h == nil {
			return nil, errors.New("record store helper is not enabled")
		}
		return storeclient.NewDocStore(h.BaseURL()), nil
	case backendSQLite, "":
		db, err := database.New(ctx, s.cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		s.db = db
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.cfg.Store.Backend)
	}
}

func (s *Service) pipelineConfig() queue.PipelineConfig {
	p := s.cfg.Processing
	return queue.PipelineConfig{
		Thumbnails: p.Thumbnails,
		Thumbnail: media.ThumbnailPolicy{
			Count:           p.ThumbnailCount,
			StartPercentage: p.ThumbnailStart,
			EndPercentage:   p.ThumbnailEnd,
		},
		Preview:              p.Preview,
		Checksums:            p.Checksums,
		ImageThumbnails:      p.ImageThumbnails,
		ImageThumbnailDir:    s.cfg.ImageThumbnailDir(),
		ImageThumbnailSize:   p.ImageThumbnailSize,
		ImageDir:             s.cfg.ImageDir(),
		CreateMissingActors:  p.CreateMissingActors,
		CreateMissingLabels:  p.CreateMissingLabels,
		CreateMissingStudios: p.CreateMissingStudios,
		Retry:                filesystem.DefaultRetryConfig(),
	}
}

// pipelineDeps leaves optional collaborators as nil interfaces when they
// are not configured.
func (s *Service) pipelineDeps(extractor *matching.Extractor) queue.Deps {
	deps := queue.Deps{
		Catalog:   s.catalog,
		Extractor: extractor,
		Prober:    media.NewProber(s.cfg.Binaries.FFprobe),
	}
	if s.cfg.Processing.Thumbnails || s.cfg.Processing.Preview {
		deps.Renderer = media.NewRenderer(media.RendererConfig{
			FFmpeg:       s.cfg.Binaries.FFmpeg,
			ThumbnailDir: s.cfg.ThumbnailDir(),
			PreviewDir:   s.cfg.PreviewDir(),
			ThumbWidth:   s.cfg.Processing.ThumbnailWidth,
			PreviewWidth: s.cfg.Processing.PreviewWidth,
		})
	}
	if s.cfg.Plugins.Enabled {
		deps.Plugins = s.runner
	}
	if s.search != nil {
		deps.Search = s.search
	}
	return deps
}

// Start resumes the queue, starts the scanner and runs the background
// services under a supervisor tree.
func (s *Service) Start(ctx context.Context) error {
	handler := &sutureslog.Handler{Logger: logging.Slog("ingest")}
	tree := suture.New("ingest", suture.Spec{
		EventHook: handler.MustHook(),
		Timeout:   5 * time.Second,
	})
	tree.Add(s.collector)
	tree.Add(s.memory)
	if s.watcher != nil {
		tree.Add(s.watcher)
	}

	treeCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.errc = tree.ServeBackground(treeCtx)

	s.queue.Start(ctx)

	startup.LogScannerInit(s.cfg.Library.ScanInterval, s.cfg.Library.ScanOnStartup)
	if err := s.scanner.Start(ctx); err != nil {
		s.Stop()
		return fmt.Errorf("start scanner: %w", err)
	}
	return nil
}

// Stop halts scanning, waits for the in-flight queue item and closes the
// stores. It is safe to call once after Start, or after a failed Start.
func (s *Service) Stop() {
	startup.LogShutdownStep("Stopping scanner")
	s.scanner.Stop()
	startup.LogShutdownStepComplete("Scanner stopped")

	startup.LogShutdownStep("Draining ingestion queue")
	s.queue.Stop()
	startup.LogShutdownStepComplete("Ingestion queue stopped")

	if s.cancel != nil {
		s.cancel()
		if err := <-s.errc; err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("Background services stopped: %v", err)
		}
		s.cancel = nil
	}

	s.close()
	startup.LogShutdownStepComplete("Stores closed")
}

func (s *Service) close() {
	if s.queueStore != nil {
		if err := s.queueStore.Close(); err != nil {
			logging.Warn("Failed to close queue store: %v", err)
		}
		s.queueStore = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
		s.db = nil
	}
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			logging.Warn("Failed to close search client: %v", err)
		}
	}
}

// Catalog returns the catalog.
func (s *Service) Catalog() *database.Catalog { return s.catalog }

// Queue returns the ingestion queue.
func (s *Service) Queue() *queue.Queue { return s.queue }

// Scanner returns the library scanner.
func (s *Service) Scanner() *indexer.Scanner { return s.scanner }

// Search returns the search index client, or nil when the search helper
// is disabled.
func (s *Service) Search() *storeclient.SearchIndex { return s.search }
