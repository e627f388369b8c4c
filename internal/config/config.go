package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// DefaultPath is read when CONFIG_PATH is unset
const DefaultPath = "config.toml"

// Config 应用配置
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Logging      logger.Config      `toml:"logging"`
	Segmentation SegmentationConfig `toml:"segmentation"`
	Overspeed    OverspeedConfig    `toml:"overspeed"`
	Output       OutputConfig       `toml:"output"`
	Data         DataConfig         `toml:"data"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port      string `toml:"port"`
	JWTSecret string `toml:"jwt_secret"` // empty disables auth
	MaxBodyMB int64  `toml:"max_body_mb"`

	// RateLimit is detection requests per minute per client, 0 disables
	RateLimit int `toml:"rate_limit"`
}

// DatabaseConfig configures the record store
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SegmentationConfig holds trajectory segmentation defaults
type SegmentationConfig struct {
	GapThreshold Duration `toml:"gap_threshold"`
	MinPoints    int      `toml:"min_points"`
	MinExtentKm2 float64  `toml:"min_extent_km2"` // 0 means the default, negative disables the gate
	TimeField    string   `toml:"time_field"`
	Workers      int      `toml:"workers"`
}

// OverspeedConfig holds overspeed defaults
type OverspeedConfig struct {
	Percentile       float64 `toml:"percentile"`
	NoiseSuppression bool    `toml:"noise_suppression"`

	// LegacyVariant selects percentile 0.98 without noise suppression
	LegacyVariant bool `toml:"legacy_variant"`
}

// OutputConfig controls result files
type OutputConfig struct {
	Dir              string `toml:"dir"`
	SmallDatasetRows int    `toml:"small_dataset_rows"`
}

// DataConfig locates input files
type DataConfig struct {
	Dir       string `toml:"dir"`
	LocalZone string `toml:"local_zone"`
}

// Duration decodes TOML strings such as "30m"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      ":8080",
			MaxBodyMB: 64,
			RateLimit: 30,
		},
		Database: DatabaseConfig{
			Path: "./data/ais.db",
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Segmentation: SegmentationConfig{
			GapThreshold: Duration{trajectory.DefaultGapThreshold},
			MinPoints:    trajectory.DefaultMinPoints,
			MinExtentKm2: trajectory.DefaultMinExtent,
			TimeField:    "local",
			Workers:      runtime.GOMAXPROCS(0),
		},
		Overspeed: OverspeedConfig{
			Percentile:       0.99,
			NoiseSuppression: true,
		},
		Output: OutputConfig{
			Dir:              "./output",
			SmallDatasetRows: 50000,
		},
		Data: DataConfig{
			Dir:       "./data",
			LocalZone: "Pacific/Honolulu",
		},
	}
}

// Load 加载配置: defaults, then the TOML file, then environment overrides.
// A missing file at the default path is not an error; an explicit
// CONFIG_PATH that does not exist is.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes the TOML file at path over the defaults
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Overspeed.LegacyVariant {
		c.Overspeed.Percentile = 0.98
		c.Overspeed.NoiseSuppression = false
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			v = ":" + v
		}
		c.Server.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("SEGMENTATION_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SEGMENTATION_WORKERS %q: %w", v, err)
		}
		c.Segmentation.Workers = n
	}
	return nil
}

// SegmentationOptions converts the segmentation section
func (c *Config) SegmentationOptions() trajectory.Options {
	opts := trajectory.DefaultOptions()
	opts.GapThreshold = c.Segmentation.GapThreshold.Duration
	opts.MinPoints = c.Segmentation.MinPoints
	opts.MinExtent = c.Segmentation.MinExtentKm2
	opts.Workers = c.Segmentation.Workers
	if tf := models.TimeField(c.Segmentation.TimeField); tf.Valid() {
		opts.TimeField = tf
	}
	return opts
}

// Location resolves the local zone of the data
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Data.LocalZone)
	if err != nil {
		return nil, fmt.Errorf("invalid data.local_zone %q: %w", c.Data.LocalZone, err)
	}
	return loc, nil
}
