package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Catalog store metrics
var (
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_store_operations_total",
			Help: "Total number of catalog store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_store_operation_duration_seconds",
			Help:    "Catalog store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend", "operation"},
	)

	CatalogRecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_vault_catalog_records",
			Help: "Number of catalog records by collection",
		},
		[]string{"collection"},
	)

	ReferencesPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_vault_references_pruned_total",
			Help: "Total number of dangling cross-references removed",
		},
	)
)

// Scanner metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_scan_runs_total",
			Help: "Total number of library scans by outcome",
		},
		[]string{"status"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_vault_scan_duration_seconds",
			Help:    "Library scan duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ScanFilesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_scan_files_discovered_total",
			Help: "Files discovered by the path walker",
		},
		[]string{"kind"},
	)

	ScanFilesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_scan_files_enqueued_total",
			Help: "Files newly added to the ingestion queue",
		},
		[]string{"kind"},
	)

	ScanInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_scan_in_progress",
			Help: "Whether a library scan is currently running (1 = yes)",
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_scan_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan",
		},
	)
)

// Ingestion queue metrics
var (
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_queue_length",
			Help: "Number of items waiting in the ingestion queue",
		},
	)

	QueueItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_queue_items_processed_total",
			Help: "Queue items finished by outcome (completed, failed, removed)",
		},
		[]string{"kind", "status"},
	)

	QueueItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_queue_item_failures_total",
			Help: "Queue item failures by processing step",
		},
		[]string{"step"},
	)

	QueueItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_queue_item_duration_seconds",
			Help:    "Time spent processing one queue item",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	QueueLoopRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_queue_loop_running",
			Help: "Whether the ingestion loop is running (1 = yes)",
		},
	)
)

// Media tool metrics
var (
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_probe_duration_seconds",
			Help:    "ffprobe invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	ThumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_thumbnails_generated_total",
			Help: "Thumbnails rendered by type and outcome",
		},
		[]string{"type", "status"},
	)

	ThumbnailDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_thumbnail_duration_seconds",
			Help:    "Time to render one thumbnail or preview",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)
)

// Plugin metrics
var (
	PluginInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_plugin_invocations_total",
			Help: "Plugin runs by plugin, event and outcome",
		},
		[]string{"plugin", "event", "status"},
	)

	PluginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_plugin_duration_seconds",
			Help:    "Plugin run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"plugin"},
	)

	PluginHelperCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_plugin_helper_calls_total",
			Help: "Host helper calls requested by plugins",
		},
		[]string{"method", "status"},
	)

	PluginFieldsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_plugin_fields_rejected_total",
			Help: "Plugin output fields dropped by validation",
		},
		[]string{"field"},
	)

	PluginReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_vault_plugin_reloads_total",
			Help: "Plugin reloads triggered by file changes",
		},
	)
)

// Helper service metrics
var (
	HelperUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_vault_helper_up",
			Help: "Whether a helper service answered its last health check (1 = yes)",
		},
		[]string{"helper"},
	)

	HelperSpawnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_helper_spawns_total",
			Help: "Helper process spawns by outcome",
		},
		[]string{"helper", "status"},
	)

	HelperDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_helper_downloads_total",
			Help: "Helper binary downloads by outcome",
		},
		[]string{"helper", "status"},
	)

	HelperRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_helper_requests_total",
			Help: "HTTP requests sent to helper services",
		},
		[]string{"helper", "method", "status"},
	)

	HelperBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_vault_helper_breaker_state",
			Help: "Circuit breaker state per helper (0 closed, 1 half-open, 2 open)",
		},
		[]string{"helper"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_filesystem_retry_attempts_total",
			Help: "Retries after NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_vault_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors seen",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_vault_filesystem_retry_duration_seconds",
			Help:    "Total time spent in a retried filesystem operation",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the soft memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_vault_memory_paused",
			Help: "Whether ingestion is paused for memory pressure (1 = paused)",
		},
	)
)

// App info
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "media_vault_app_info",
		Help: "Build information, value is always 1",
	},
	[]string{"version", "commit", "go_version"},
)
