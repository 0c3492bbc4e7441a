package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Engine   EngineConfig   `yaml:"engine"`
	Preview  PreviewConfig  `yaml:"preview"`
	Progress ProgressConfig `yaml:"progress"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LibraryConfig confines local sources. Local files outside Path are never
// loaded or streamed; an empty Path allows remote sources only.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

type PreviewConfig struct {
	Width         int           `yaml:"width"`
	Debounce      time.Duration `yaml:"debounce"`
	CacheCapacity int           `yaml:"cache_capacity"`
	CacheMaxSize  int64         `yaml:"cache_max_size"` // bytes
	CacheBucket   float64       `yaml:"cache_bucket"`   // seconds
}

type ProgressConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// EventInterval throttles progress pushes on the event stream.
	EventInterval time.Duration `yaml:"event_interval"`
}

type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         6540,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Library: LibraryConfig{
			Path: "",
		},
		Engine: EngineConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Preview: PreviewConfig{
			Width:         160,
			Debounce:      100 * time.Millisecond,
			CacheCapacity: 256,
			CacheMaxSize:  32 * 1024 * 1024, // 32 MB
			CacheBucket:   1,
		},
		Progress: ProgressConfig{
			RefreshInterval: 16 * time.Millisecond,
			EventInterval:   250 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path:    "data/scrubview.db",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the preview and progress pipelines cannot run
// with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Preview.Width <= 0 {
		errs = append(errs, fmt.Errorf("preview.width must be positive, got %d", c.Preview.Width))
	}
	if c.Preview.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("preview.debounce must be positive, got %s", c.Preview.Debounce))
	}
	if c.Preview.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("preview.cache_capacity must not be negative, got %d", c.Preview.CacheCapacity))
	}
	if c.Progress.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("progress.refresh_interval must be positive, got %s", c.Progress.RefreshInterval))
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required when the database is enabled"))
	}
	return errors.Join(errs...)
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
