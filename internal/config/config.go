package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/haul/internal/downloader"
	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/integrity"
	"github.com/ligustah/haul/internal/logger"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/retry"
	"github.com/ligustah/haul/internal/source"
)

// DefaultTempDir is where partial downloads are kept between runs.
const DefaultTempDir = "~/.haul/partial"

// Progress display modes.
const (
	ProgressBars = "bars"
	ProgressText = "text"
	ProgressNone = "none"
)

// ErrNoItems is returned by DownloadItems when nothing is configured.
var ErrNoItems = errors.New("config: no items to download")

// Config defines configuration for the haul CLI.
type Config struct {
	Items          []ItemConfig  `yaml:"items"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ChunkTimeout   time.Duration `yaml:"chunk_timeout"`
	FlushThreshold int64         `yaml:"flush_threshold"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	TempDir        string        `yaml:"temp_dir"`
	RateLimit      int64         `yaml:"rate_limit"` // bytes per second, 0 is unlimited
	Progress       string        `yaml:"progress"`
	LogLevel       string        `yaml:"log_level"`
	Retry          RetryConfig   `yaml:"retry"`
}

// ItemConfig is one entry of the items list.
type ItemConfig struct {
	URL    string `yaml:"url"`
	Dest   string `yaml:"dest"`
	Digest string `yaml:"digest"` // "alg:hex", optional
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration `yaml:"initial_interval"`
	RandomizationFactor float64       `yaml:"randomization_factor"`
	Multiplier          float64       `yaml:"multiplier"`
	MaxInterval         time.Duration `yaml:"max_interval"`
	MaxElapsedTime      time.Duration `yaml:"max_elapsed_time"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	opts := downloader.DefaultOptions()
	return Config{
		ConnectTimeout: opts.ConnectTimeout,
		RequestTimeout: opts.RequestTimeout,
		ChunkTimeout:   opts.ChunkTimeout,
		FlushThreshold: int64(opts.FlushThreshold),
		MaxConcurrent:  opts.MaxConcurrent,
		TempDir:        DefaultTempDir,
		Progress:       ProgressBars,
		LogLevel:       "info",
		Retry: RetryConfig{
			InitialInterval:     opts.Retry.InitialInterval,
			RandomizationFactor: opts.Retry.RandomizationFactor,
			Multiplier:          opts.Retry.Multiplier,
			MaxInterval:         opts.Retry.MaxInterval,
			MaxElapsedTime:      opts.Retry.MaxElapsedTime,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Items          []ItemConfig    `yaml:"items"`
	ConnectTimeout string          `yaml:"connect_timeout"`
	RequestTimeout string          `yaml:"request_timeout"`
	ChunkTimeout   string          `yaml:"chunk_timeout"`
	FlushThreshold string          `yaml:"flush_threshold"`
	MaxConcurrent  int             `yaml:"max_concurrent"`
	TempDir        string          `yaml:"temp_dir"`
	RateLimit      string          `yaml:"rate_limit"`
	Progress       string          `yaml:"progress"`
	LogLevel       string          `yaml:"log_level"`
	Retry          yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	InitialInterval     string   `yaml:"initial_interval"`
	RandomizationFactor *float64 `yaml:"randomization_factor"` // nil keeps the default, 0 disables jitter
	Multiplier          float64  `yaml:"multiplier"`
	MaxInterval         string   `yaml:"max_interval"`
	MaxElapsedTime      string   `yaml:"max_elapsed_time"`
}

// LoadFromFile loads configuration from a YAML file. A leading "~" in path
// is expanded to the home directory.
func LoadFromFile(path string) (Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("expand config path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	cfg.Items = yc.Items

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", yc.ConnectTimeout, &cfg.ConnectTimeout},
		{"request_timeout", yc.RequestTimeout, &cfg.RequestTimeout},
		{"chunk_timeout", yc.ChunkTimeout, &cfg.ChunkTimeout},
		{"retry.initial_interval", yc.Retry.InitialInterval, &cfg.Retry.InitialInterval},
		{"retry.max_interval", yc.Retry.MaxInterval, &cfg.Retry.MaxInterval},
		{"retry.max_elapsed_time", yc.Retry.MaxElapsedTime, &cfg.Retry.MaxElapsedTime},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if yc.FlushThreshold != "" {
		size, err := progress.ParseBytes(yc.FlushThreshold)
		if err != nil {
			return Config{}, fmt.Errorf("parse flush_threshold: %w", err)
		}
		cfg.FlushThreshold = size
	}
	if yc.RateLimit != "" {
		size, err := progress.ParseBytes(yc.RateLimit)
		if err != nil {
			return Config{}, fmt.Errorf("parse rate_limit: %w", err)
		}
		cfg.RateLimit = size
	}
	if yc.MaxConcurrent != 0 {
		cfg.MaxConcurrent = yc.MaxConcurrent
	}
	if yc.TempDir != "" {
		cfg.TempDir = yc.TempDir
	}
	if yc.Progress != "" {
		cfg.Progress = yc.Progress
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.Retry.RandomizationFactor != nil {
		cfg.Retry.RandomizationFactor = *yc.Retry.RandomizationFactor
	}
	if yc.Retry.Multiplier != 0 {
		cfg.Retry.Multiplier = yc.Retry.Multiplier
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the HAUL_ prefix.
func (c *Config) LoadFromEnv() error {
	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"HAUL_CONNECT_TIMEOUT", &c.ConnectTimeout},
		{"HAUL_REQUEST_TIMEOUT", &c.RequestTimeout},
		{"HAUL_CHUNK_TIMEOUT", &c.ChunkTimeout},
		{"HAUL_RETRY_INITIAL_INTERVAL", &c.Retry.InitialInterval},
		{"HAUL_RETRY_MAX_INTERVAL", &c.Retry.MaxInterval},
		{"HAUL_RETRY_MAX_ELAPSED_TIME", &c.Retry.MaxElapsedTime},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("HAUL_FLUSH_THRESHOLD"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_FLUSH_THRESHOLD: %w", err)
		}
		c.FlushThreshold = size
	}
	if v := os.Getenv("HAUL_RATE_LIMIT"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_RATE_LIMIT: %w", err)
		}
		c.RateLimit = size
	}
	if v := os.Getenv("HAUL_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse HAUL_MAX_CONCURRENT: %w", err)
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("HAUL_TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv("HAUL_PROGRESS"); v != "" {
		c.Progress = v
	}
	if v := os.Getenv("HAUL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 || c.RequestTimeout <= 0 || c.ChunkTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	if c.FlushThreshold <= 0 {
		return errors.New("config: flush_threshold must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("config: max_concurrent must be positive")
	}
	if c.RateLimit < 0 {
		return errors.New("config: rate_limit must not be negative")
	}
	switch c.Progress {
	case ProgressBars, ProgressText, ProgressNone:
	default:
		return fmt.Errorf("config: unknown progress mode %q", c.Progress)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("config: retry intervals must be positive and max_interval >= initial_interval")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("config: retry.multiplier must be at least 1")
	}
	if c.Retry.RandomizationFactor < 0 || c.Retry.RandomizationFactor >= 1 {
		return errors.New("config: retry.randomization_factor must be in [0, 1)")
	}
	for i, item := range c.Items {
		if err := item.validate(); err != nil {
			return fmt.Errorf("config: items[%d]: %w", i, err)
		}
	}
	return nil
}

func (it ItemConfig) validate() error {
	if it.URL == "" {
		return errors.New("url is required")
	}
	if !source.IsBucketURL(it.URL) {
		if _, err := haulhttp.ParseURL(it.URL); err != nil {
			return err
		}
	}
	if it.Dest == "" {
		return errors.New("dest is required")
	}
	if it.Digest != "" {
		if _, err := integrity.Parse(it.Digest); err != nil {
			return err
		}
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so Merge never sets a field to zero.
// A zero retry.randomization_factor or retry.max_elapsed_time ("0s", retry
// until canceled) is set through LoadFromFile or the environment instead.
// Non-empty override items replace the configured ones.
func (c Config) Merge(override Config) Config {
	if len(override.Items) > 0 {
		c.Items = override.Items
	}
	if override.ConnectTimeout != 0 {
		c.ConnectTimeout = override.ConnectTimeout
	}
	if override.RequestTimeout != 0 {
		c.RequestTimeout = override.RequestTimeout
	}
	if override.ChunkTimeout != 0 {
		c.ChunkTimeout = override.ChunkTimeout
	}
	if override.FlushThreshold != 0 {
		c.FlushThreshold = override.FlushThreshold
	}
	if override.MaxConcurrent != 0 {
		c.MaxConcurrent = override.MaxConcurrent
	}
	if override.TempDir != "" {
		c.TempDir = override.TempDir
	}
	if override.RateLimit != 0 {
		c.RateLimit = override.RateLimit
	}
	if override.Progress != "" {
		c.Progress = override.Progress
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.Retry.InitialInterval != 0 {
		c.Retry.InitialInterval = override.Retry.InitialInterval
	}
	if override.Retry.RandomizationFactor != 0 {
		c.Retry.RandomizationFactor = override.Retry.RandomizationFactor
	}
	if override.Retry.Multiplier != 0 {
		c.Retry.Multiplier = override.Retry.Multiplier
	}
	if override.Retry.MaxInterval != 0 {
		c.Retry.MaxInterval = override.Retry.MaxInterval
	}
	if override.Retry.MaxElapsedTime != 0 {
		c.Retry.MaxElapsedTime = override.Retry.MaxElapsedTime
	}
	return c
}

// Options converts the configuration to downloader options. The temp
// directory is expanded; Display and Sources are left for the caller.
func (c Config) Options() (downloader.Options, error) {
	tempDir, err := homedir.Expand(c.TempDir)
	if err != nil {
		return downloader.Options{}, fmt.Errorf("expand temp_dir: %w", err)
	}
	return downloader.Options{
		ConnectTimeout: c.ConnectTimeout,
		RequestTimeout: c.RequestTimeout,
		ChunkTimeout:   c.ChunkTimeout,
		FlushThreshold: int(c.FlushThreshold),
		MaxConcurrent:  c.MaxConcurrent,
		TempDir:        tempDir,
		RateLimit:      c.RateLimit,
		Retry: retry.Policy{
			InitialInterval:     c.Retry.InitialInterval,
			RandomizationFactor: c.Retry.RandomizationFactor,
			Multiplier:          c.Retry.Multiplier,
			MaxInterval:         c.Retry.MaxInterval,
			MaxElapsedTime:      c.Retry.MaxElapsedTime,
		},
	}, nil
}

// DownloadItems converts the configured items. Destinations are expanded
// and digests parsed.
func (c Config) DownloadItems() ([]downloader.Item, error) {
	if len(c.Items) == 0 {
		return nil, ErrNoItems
	}
	items := make([]downloader.Item, 0, len(c.Items))
	for i, it := range c.Items {
		if err := it.validate(); err != nil {
			return nil, fmt.Errorf("config: items[%d]: %w", i, err)
		}
		dest, err := homedir.Expand(it.Dest)
		if err != nil {
			return nil, fmt.Errorf("config: items[%d]: expand dest: %w", i, err)
		}
		item := downloader.Item{URL: it.URL, Dest: dest}
		if it.Digest != "" {
			spec, err := integrity.Parse(it.Digest)
			if err != nil {
				return nil, fmt.Errorf("config: items[%d]: %w", i, err)
			}
			item.Integrity = &spec
		}
		items = append(items, item)
	}
	return items, nil
}
