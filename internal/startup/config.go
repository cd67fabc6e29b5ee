package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-vault/internal/validation"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that points at a YAML
// config file. Without it the default paths are searched.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/media-vault/config.yaml",
}

// Config holds all application configuration
type Config struct {
	Library    LibraryConfig    `koanf:"library"`
	Processing ProcessingConfig `koanf:"processing"`
	Matching   MatchingConfig   `koanf:"matching"`
	Binaries   BinariesConfig   `koanf:"binaries"`
	Store      StoreConfig      `koanf:"store"`
	Helpers    HelpersConfig    `koanf:"helpers"`
	Plugins    PluginsConfig    `koanf:"plugins"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// LibraryConfig describes where media lives and how often it is scanned.
type LibraryConfig struct {
	VideoPaths    []string      `koanf:"video_paths"`
	ImagePaths    []string      `koanf:"image_paths"`
	Excludes      []string      `koanf:"excludes"`
	ScanInterval  time.Duration `koanf:"scan_interval" validate:"min=0"`
	ScanOnStartup bool          `koanf:"scan_on_startup"`
	DataDir       string        `koanf:"data_dir" validate:"required"`
	Workers       int           `koanf:"workers" validate:"min=0,max=64"`
}

// ProcessingConfig controls the per-item work done by the ingestion queue.
type ProcessingConfig struct {
	Thumbnails           bool    `koanf:"thumbnails"`
	ThumbnailCount       int     `koanf:"thumbnail_count" validate:"min=1,max=100"`
	ThumbnailStart       float64 `koanf:"thumbnail_start" validate:"min=0,max=100"`
	ThumbnailEnd         float64 `koanf:"thumbnail_end" validate:"gtfield=ThumbnailStart,max=100"`
	ThumbnailWidth       int     `koanf:"thumbnail_width" validate:"min=16,max=4096"`
	Preview              bool    `koanf:"preview"`
	PreviewWidth         int     `koanf:"preview_width" validate:"min=16,max=4096"`
	Checksums            bool    `koanf:"checksums"`
	ImageThumbnails      bool    `koanf:"image_thumbnails"`
	ImageThumbnailSize   int     `koanf:"image_thumbnail_size" validate:"min=16,max=4096"`
	CreateMissingActors  bool    `koanf:"create_missing_actors"`
	CreateMissingLabels  bool    `koanf:"create_missing_labels"`
	CreateMissingStudios bool    `koanf:"create_missing_studios"`
}

// MatchingConfig tunes name extraction from file paths.
type MatchingConfig struct {
	IgnoreSingleNames bool `koanf:"ignore_single_names"`
}

// BinariesConfig locates ffmpeg and ffprobe.
type BinariesConfig struct {
	FFmpeg  string `koanf:"ffmpeg" validate:"required"`
	FFprobe string `koanf:"ffprobe" validate:"required"`
}

// StoreConfig selects the catalog backend.
type StoreConfig struct {
	Backend      string `koanf:"backend" validate:"oneof=sqlite helper"`
	DatabasePath string `koanf:"database_path"`
}

// HelpersConfig describes the two supervised helper services.
type HelpersConfig struct {
	BinDir        string        `koanf:"bin_dir"`
	SpawnAttempts int           `koanf:"spawn_attempts" validate:"min=1,max=20"`
	ReadyTimeout  time.Duration `koanf:"ready_timeout" validate:"min=0"`
	SettleDelay   time.Duration `koanf:"settle_delay" validate:"min=0"`
	RecordStore   HelperConfig  `koanf:"record_store"`
	Search        HelperConfig  `koanf:"search"`
}

// HelperConfig is one helper binary. Assets maps "goos/goarch" to the
// release file name for that platform.
type HelperConfig struct {
	Enabled    bool              `koanf:"enabled"`
	Binary     string            `koanf:"binary"`
	Version    string            `koanf:"version"`
	Port       int               `koanf:"port" validate:"min=0,max=65535"`
	ReleaseURL string            `koanf:"release_url"`
	Assets     map[string]string `koanf:"assets"`
}

// PluginsConfig registers plugins and binds them to events.
type PluginsConfig struct {
	Enabled    bool                    `koanf:"enabled"`
	Watch      bool                    `koanf:"watch"`
	Timeout    time.Duration           `koanf:"timeout" validate:"min=0"`
	Registered map[string]PluginConfig `koanf:"registered" validate:"dive"`
	Events     map[string][]string     `koanf:"events"`
}

// PluginConfig is a single plugin. Command is run as a subprocess; Path, when
// set, is the script file watched for hot reload.
type PluginConfig struct {
	Command []string               `koanf:"command" validate:"min=1"`
	Path    string                 `koanf:"path"`
	Args    map[string]interface{} `koanf:"args"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port int `koanf:"port" validate:"min=1,max=65535"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console auto"`
}

// ThumbnailDir is where scene thumbnails are written.
func (c *Config) ThumbnailDir() string { return filepath.Join(c.Library.DataDir, "thumbnails") }

// PreviewDir is where scene previews are written.
func (c *Config) PreviewDir() string { return filepath.Join(c.Library.DataDir, "previews") }

// ImageThumbnailDir is where resized image thumbnails are written.
func (c *Config) ImageThumbnailDir() string {
	return filepath.Join(c.Library.DataDir, "image-thumbnails")
}

// Volumes names the configured roots for filesystem metric labels.
func (c *Config) Volumes() map[string][]string {
	return map[string][]string{
		"video": c.Library.VideoPaths,
		"image": c.Library.ImagePaths,
		"data":  {c.Library.DataDir},
	}
}

// ImageDir holds images fetched or copied in by plugins.
func (c *Config) ImageDir() string { return filepath.Join(c.Library.DataDir, "images") }

// QueueDir holds the badger queue files.
func (c *Config) QueueDir() string { return filepath.Join(c.Library.DataDir, "queue") }

// DatabasePath resolves the sqlite file, defaulting under the data dir.
func (c *Config) DatabasePath() string {
	if c.Store.DatabasePath != "" {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.Library.DataDir, "library.db")
}

// HelperBinDir resolves where helper binaries are kept.
func (c *Config) HelperBinDir() string {
	if c.Helpers.BinDir != "" {
		return c.Helpers.BinDir
	}
	return filepath.Join(c.Library.DataDir, "bin")
}

// DefaultConfig returns the built-in defaults, the lowest configuration layer.
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			VideoPaths:    []string{},
			ImagePaths:    []string{},
			Excludes:      []string{},
			ScanInterval:  30 * time.Minute,
			ScanOnStartup: true,
			DataDir:       "/data",
		},
		Processing: ProcessingConfig{
			Thumbnails:           true,
			ThumbnailCount:       1,
			ThumbnailStart:       0,
			ThumbnailEnd:         100,
			ThumbnailWidth:       320,
			Preview:              true,
			PreviewWidth:         640,
			Checksums:            false,
			ImageThumbnails:      true,
			ImageThumbnailSize:   320,
			CreateMissingActors:  true,
			CreateMissingLabels:  true,
			CreateMissingStudios: true,
		},
		Matching: MatchingConfig{IgnoreSingleNames: true},
		Binaries: BinariesConfig{FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		Store:    StoreConfig{Backend: "sqlite"},
		Helpers: HelpersConfig{
			SpawnAttempts: 5,
			ReadyTimeout:  5 * time.Second,
			SettleDelay:   time.Second,
			RecordStore: HelperConfig{
				Binary: "record-store",
				Port:   7700,
				Assets: map[string]string{},
			},
			Search: HelperConfig{
				Binary: "search-index",
				Port:   7701,
				Assets: map[string]string{},
			},
		},
		Plugins: PluginsConfig{
			Enabled:    true,
			Watch:      true,
			Timeout:    time.Minute,
			Registered: map[string]PluginConfig{},
			Events:     map[string][]string{},
		},
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// ReadConfig layers defaults, an optional YAML file and mapped environment
// variables, then validates the result. It performs no filesystem setup.
func ReadConfig() (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	path := findConfigFile()
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, path, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envToKey), nil); err != nil {
		return nil, path, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitListFields(k); err != nil {
		return nil, path, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, path, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Validate checks struct rules and cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.Backend == "helper" && !c.Helpers.RecordStore.Enabled {
		return fmt.Errorf("invalid configuration: store.backend=helper requires helpers.record_store.enabled")
	}
	for event, names := range c.Plugins.Events {
		for _, name := range names {
			if _, ok := c.Plugins.Registered[name]; !ok {
				return fmt.Errorf("invalid configuration: event %q references unknown plugin %q", event, name)
			}
		}
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var listFields = []string{
	"library.video_paths",
	"library.image_paths",
	"library.excludes",
}

// splitListFields turns comma-separated environment values into slices.
func splitListFields(k *koanf.Koanf) error {
	for _, key := range listFields {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

var envKeys = map[string]string{
	"video_paths":     "library.video_paths",
	"image_paths":     "library.image_paths",
	"exclude":         "library.excludes",
	"scan_interval":   "library.scan_interval",
	"scan_on_startup": "library.scan_on_startup",
	"data_dir":        "library.data_dir",
	"scan_workers":    "library.workers",

	"thumbnails":             "processing.thumbnails",
	"thumbnail_count":        "processing.thumbnail_count",
	"thumbnail_start":        "processing.thumbnail_start",
	"thumbnail_end":          "processing.thumbnail_end",
	"thumbnail_width":        "processing.thumbnail_width",
	"previews":               "processing.preview",
	"checksums":              "processing.checksums",
	"image_thumbnails":       "processing.image_thumbnails",
	"image_thumbnail_size":   "processing.image_thumbnail_size",
	"create_missing_actors":  "processing.create_missing_actors",
	"create_missing_labels":  "processing.create_missing_labels",
	"create_missing_studios": "processing.create_missing_studios",

	"ignore_single_names": "matching.ignore_single_names",

	"ffmpeg_path":  "binaries.ffmpeg",
	"ffprobe_path": "binaries.ffprobe",

	"store_backend": "store.backend",
	"database_path": "store.database_path",

	"helpers_bin_dir":        "helpers.bin_dir",
	"helpers_spawn_attempts": "helpers.spawn_attempts",
	"helpers_ready_timeout":  "helpers.ready_timeout",
	"record_store_enabled":   "helpers.record_store.enabled",
	"record_store_port":      "helpers.record_store.port",
	"record_store_version":   "helpers.record_store.version",
	"search_enabled":         "helpers.search.enabled",
	"search_port":            "helpers.search.port",
	"search_version":         "helpers.search.version",

	"plugins_enabled": "plugins.enabled",
	"plugins_watch":   "plugins.watch",
	"plugin_timeout":  "plugins.timeout",

	"port": "server.port",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envToKey maps known environment variables onto config keys. Unknown
// variables map to "" and are skipped.
func envToKey(name string) string {
	return envKeys[strings.ToLower(name)]
}
