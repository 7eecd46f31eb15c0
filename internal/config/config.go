// Package config loads and validates the slidereel configuration.
// Built-in defaults are overridden by an optional YAML file, which
// SLIDEREEL_-prefixed environment variables override in turn.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/slidereel/pkg/duration"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultMaxOpenConns    = 6
	defaultMaxIdleConns    = 3
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultProbeTimeout  = 10 * time.Second
	defaultDetectTimeout = 10 * time.Second
	defaultConcatTimeout = 5 * time.Minute

	defaultGroupSize  = 1
	defaultFPS        = 24
	defaultResolution = "1080p"
	defaultCodec      = "h264"
	defaultPolicy     = "auto"

	defaultTempMaxAge       = time.Hour
	defaultHistoryRetention = 30 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	Encoding    EncodingConfig    `mapstructure:"encoding"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig controls the HTTP listener and its timeouts. Note the
// write timeout does not apply to the SSE stream, which manages its
// own deadline.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the backing store. Driver is sqlite, postgres
// or mysql; sqlite is the default and its DSN is just a file path.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	LogLevel string `mapstructure:"log_level"` // silent, error, warn or info
}

// StorageConfig holds working-directory configuration for segment encoding.
type StorageConfig struct {
	// WorkDir is where per-group segment directories are created.
	// Empty means the system temp directory.
	WorkDir string `mapstructure:"work_dir"`
	// TempMaxAge is how old an orphaned group directory must be before
	// startup or scheduled cleanup removes it.
	TempMaxAge time.Duration `mapstructure:"temp_max_age"`
}

// LoggingConfig shapes the slog output.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn or error
	Format     string `mapstructure:"format"` // json or text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath    string        `mapstructure:"binary_path"`    // Path to ffmpeg binary (empty = $PATH lookup)
	ProbePath     string        `mapstructure:"probe_path"`     // Path to ffprobe binary (empty = $PATH lookup)
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`  // Timeout for duration probes
	DetectTimeout time.Duration `mapstructure:"detect_timeout"` // Timeout for capability detection
	ConcatTimeout time.Duration `mapstructure:"concat_timeout"` // Timeout for stream-copy concat
}

// EncodingConfig holds defaults applied to jobs that omit a field.
type EncodingConfig struct {
	GroupSize  int    `mapstructure:"group_size"`
	MergeAll   bool   `mapstructure:"merge_all"`
	FPS        int    `mapstructure:"fps"`        // 24 or 30
	Resolution string `mapstructure:"resolution"` // 720p, 1080p, 1440p
	Codec      string `mapstructure:"codec"`      // h264, hevc
	Policy     string `mapstructure:"policy"`     // auto, hardware, software
}

// MaintenanceConfig holds the janitor schedule for temp and history cleanup.
type MaintenanceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Cron             string        `mapstructure:"cron"` // 5-field cron expression
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// Load builds the configuration. With an explicit path the file must
// exist; otherwise config.yaml is searched for in the working
// directory, /etc/slidereel and $HOME/.slidereel, and running without
// one is fine. Nested keys map to underscored environment variables:
// SLIDEREEL_SERVER_PORT overrides server.port.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("SLIDEREEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "/etc/slidereel", "$HOME/.slidereel"} {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// No file on the search path is fine; defaults and the
		// environment carry the config.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))

	var cfg Config
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// durationHook decodes duration strings with pkg/duration so config
// files and env vars can say "30d" or "2w", the same notation
// `slidereel config dump` prints. Standard "90s"/"1h30m" forms still
// parse unchanged.
func durationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != durationType {
			return data, nil
		}
		return duration.Parse(data.(string))
	}
}

// SetDefaults registers the built-in value for every key, so a bare
// binary with no file and no environment still starts.
func SetDefaults(v *viper.Viper) {
	// server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// database
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "slidereel.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// storage
	v.SetDefault("storage.work_dir", "")
	v.SetDefault("storage.temp_max_age", defaultTempMaxAge)

	// logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// ffmpeg
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.detect_timeout", defaultDetectTimeout)
	v.SetDefault("ffmpeg.concat_timeout", defaultConcatTimeout)

	// encoding job defaults
	v.SetDefault("encoding.group_size", defaultGroupSize)
	v.SetDefault("encoding.merge_all", false)
	v.SetDefault("encoding.fps", defaultFPS)
	v.SetDefault("encoding.resolution", defaultResolution)
	v.SetDefault("encoding.codec", defaultCodec)
	v.SetDefault("encoding.policy", defaultPolicy)

	// maintenance janitor
	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cron", "0 3 * * *") // daily at 3 AM
	v.SetDefault("maintenance.history_retention", defaultHistoryRetention)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Encoding.GroupSize < 1 {
		return fmt.Errorf("encoding.group_size must be at least 1")
	}
	if err := ValidateFPS(c.Encoding.FPS); err != nil {
		return fmt.Errorf("encoding.fps: %w", err)
	}
	if err := ValidateResolution(c.Encoding.Resolution); err != nil {
		return fmt.Errorf("encoding.resolution: %w", err)
	}
	if err := ValidateCodec(c.Encoding.Codec); err != nil {
		return fmt.Errorf("encoding.codec: %w", err)
	}
	if err := ValidatePolicy(c.Encoding.Policy); err != nil {
		return fmt.Errorf("encoding.policy: %w", err)
	}

	if c.Maintenance.HistoryRetention < 0 {
		return fmt.Errorf("maintenance.history_retention must not be negative")
	}

	return nil
}

// ValidateFPS checks a frame rate against the supported set.
func ValidateFPS(fps int) error {
	if fps != 24 && fps != 30 {
		return fmt.Errorf("must be 24 or 30, got %d", fps)
	}
	return nil
}

// ValidateResolution checks a resolution label against the supported set.
func ValidateResolution(res string) error {
	switch res {
	case "720p", "1080p", "1440p":
		return nil
	}
	return fmt.Errorf("must be one of: 720p, 1080p, 1440p, got %q", res)
}

// ValidateCodec checks a codec preference against the supported set.
func ValidateCodec(codec string) error {
	switch codec {
	case "h264", "hevc":
		return nil
	}
	return fmt.Errorf("must be one of: h264, hevc, got %q", codec)
}

// ValidatePolicy checks an encoder policy against the supported set.
func ValidatePolicy(policy string) error {
	switch policy {
	case "auto", "hardware", "software":
		return nil
	}
	return fmt.Errorf("must be one of: auto, hardware, software, got %q", policy)
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkPath returns the directory for per-group segment directories,
// falling back to the system temp directory when unset.
func (c *StorageConfig) WorkPath() string {
	if c.WorkDir == "" {
		return os.TempDir()
	}
	return filepath.Clean(c.WorkDir)
}
