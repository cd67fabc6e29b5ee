package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"media-vault/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
}

// LoadConfig reads configuration, reconfigures logging from it, prints the
// startup banner and prepares the data directories.
func LoadConfig() (*Config, error) {
	cfg, path, err := ReadConfig()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	if path != "" {
		logging.Info("  Config file:         %s", path)
	} else {
		logging.Info("  Config file:         (none, using defaults and environment)")
	}
	logging.Info("  Video paths:         %s", listOrNone(cfg.Library.VideoPaths))
	logging.Info("  Image paths:         %s", listOrNone(cfg.Library.ImagePaths))
	logging.Info("  Excludes:            %d pattern(s)", len(cfg.Library.Excludes))
	logging.Info("  Scan interval:       %v", cfg.Library.ScanInterval)
	logging.Info("  Scan on startup:     %v", cfg.Library.ScanOnStartup)
	logging.Info("  Store backend:       %s", cfg.Store.Backend)
	logging.Info("  Thumbnails:          %s (count %d)", enabledString(cfg.Processing.Thumbnails), cfg.Processing.ThumbnailCount)
	logging.Info("  Previews:            %s", enabledString(cfg.Processing.Preview))
	logging.Info("  Checksums:           %s", enabledString(cfg.Processing.Checksums))
	logging.Info("  Ignore single names: %v", cfg.Matching.IgnoreSingleNames)
	logging.Info("  Plugins:             %s (%d registered)", enabledString(cfg.Plugins.Enabled), len(cfg.Plugins.Registered))
	logging.Info("  Port:                %d", cfg.Server.Port)
	logging.Info("  Log level:           %s", logging.GetLevel())

	section("DIRECTORY SETUP")

	dataDir, err := filepath.Abs(cfg.Library.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	cfg.Library.DataDir = dataDir
	logging.Info("  Data directory (absolute): %s", dataDir)

	if err := ensureDirectory(dataDir); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	for _, root := range append(append([]string{}, cfg.Library.VideoPaths...), cfg.Library.ImagePaths...) {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			logging.Warn("  Library path unavailable: %s", root)
		}
	}

	cfg.Processing.Thumbnails = cfg.Processing.Thumbnails && setupOptionalDir(cfg.ThumbnailDir(), "thumbnails")
	cfg.Processing.Preview = cfg.Processing.Preview && setupOptionalDir(cfg.PreviewDir(), "previews")
	cfg.Processing.ImageThumbnails = cfg.Processing.ImageThumbnails && setupOptionalDir(cfg.ImageThumbnailDir(), "image thumbnails")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Thumbnails:       %s", enabledString(cfg.Processing.Thumbnails))
	logging.Info("    Previews:         %s", enabledString(cfg.Processing.Preview))
	logging.Info("    Image thumbnails: %s", enabledString(cfg.Processing.ImageThumbnails))

	return cfg, nil
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}
	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogStoreInit logs catalog store initialization
func LogStoreInit(backend string, duration time.Duration) {
	section("CATALOG STORE")
	logging.Info("  [OK] %s store ready in %v", backend, duration)
}

// LogQueueInit logs queue recovery on startup
func LogQueueInit(pending int) {
	section("INGESTION QUEUE")
	if pending > 0 {
		logging.Info("  Resuming %d pending item(s)", pending)
	} else {
		logging.Info("  Queue is empty")
	}
}

// LogBinaryCheck logs the ffmpeg/ffprobe availability check
func LogBinaryCheck(versions map[string]string) {
	section("MEDIA TOOLS")
	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logging.Info("  [OK] %s: %s", name, versions[name])
	}
}

// LogHelpersInit logs the start of helper supervision
func LogHelpersInit(names []string) {
	section("HELPER SERVICES")
	if len(names) == 0 {
		logging.Info("  No helper services enabled")
		return
	}
	for _, n := range names {
		logging.Info("  Starting %s...", n)
	}
}

// LogScannerInit logs scanner configuration
func LogScannerInit(interval time.Duration, onStartup bool) {
	section("LIBRARY SCANNER")
	if interval > 0 {
		logging.Info("  Scan interval: %v", interval)
	} else {
		logging.Info("  Periodic scanning disabled")
	}
	logging.Info("  Scan on startup: %v", onStartup)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: tmpl})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs registered routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	section("HTTP SERVER SETUP")

	if !logging.IsDebugEnabled() {
		return
	}
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	logging.Debug("  Registered routes (%d total):", len(routes))
	for _, r := range routes {
		logging.Debug("    %-6s %s", r.Method, r.Path)
	}
}

// LogServerStarted logs successful server start
func LogServerStarted(port int, startup time.Duration) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", startup)
	logging.Info("  Listening:       http://0.0.0.0:%d", port)
	logging.Info("  Metrics:         http://localhost:%d/metrics", port)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                   _ _                               _ _
  _ __ ___   ___ _| (_) __ _    __   ____ _ _   _  | | |_
 | '_ ' _ \ / _ \ _' | |/ _' |___\ \ / / _' | | | | | | __|
 | | | | | |  __/ (| | | (_| |____\ V / (_| | |_| | | | |_
 |_| |_| |_|\___|\__,_|_|\__,_|     \_/ \__,_|\__,_|_|_|\__|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
