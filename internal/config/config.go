package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/pagepress/internal/docimage"
	pphttp "github.com/ligustah/pagepress/internal/http"
	"github.com/ligustah/pagepress/internal/progress"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "PAGEPRESS"

const (
	MinSegmentSize     = 20
	DefaultSegmentSize = 200
	DefaultConcurrency = 6
)

// Config defines configuration for the pagepress CLI.
type Config struct {
	BaseURL      string        `envconfig:"base_url"`
	Concurrency  int           `envconfig:"concurrency"`
	SegmentSize  int           `envconfig:"segment_size"`
	OutputBucket string        `envconfig:"output_bucket"`
	TempDir      string        `envconfig:"temp_dir"`
	Progress     bool          `envconfig:"progress"`
	Linearize    bool          `envconfig:"linearize"`
	QPDFPath     string        `envconfig:"qpdf_path"`
	LogLevel     string        `envconfig:"log_level"`
	MetricsAddr  string        `envconfig:"metrics_addr"`
	UserAgent    string        `envconfig:"user_agent"`
	ReapMinAge   time.Duration `envconfig:"reap_min_age"`
	HTTP         HTTPConfig    `envconfig:"http"`
	Retry        RetryConfig   `envconfig:"retry"`
}

// HTTPConfig defines per-request limits.
type HTTPConfig struct {
	ConnectTimeout time.Duration `envconfig:"connect_timeout"`
	ReadTimeout    time.Duration `envconfig:"read_timeout"`
	MaxPageSize    ByteSize      `envconfig:"max_page_size"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts     int           `envconfig:"attempts"`
	Backoff      time.Duration `envconfig:"backoff"`
	MaxBackoff   time.Duration `envconfig:"max_backoff"`
	ClientErrors bool          `envconfig:"client_errors"`
}

// ByteSize is a size in bytes that decodes from strings like "64MB".
type ByteSize int64

// Decode implements envconfig.Decoder.
func (b *ByteSize) Decode(value string) error {
	n, err := progress.ParseBytes(value)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string {
	return strconv.FormatInt(int64(b), 10)
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseURL:     docimage.DefaultBaseURL,
		Concurrency: DefaultConcurrency,
		SegmentSize: DefaultSegmentSize,
		Linearize:   true,
		QPDFPath:    "qpdf",
		LogLevel:    "info",
		UserAgent:   pphttp.DefaultUserAgent,
		HTTP: HTTPConfig{
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    30 * time.Second,
			MaxPageSize:    64 * 1024 * 1024, // 64MB
		},
		Retry: RetryConfig{
			Attempts:   6,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	BaseURL      string          `yaml:"base_url"`
	Concurrency  int             `yaml:"concurrency"`
	SegmentSize  int             `yaml:"segment_size"`
	OutputBucket string          `yaml:"output_bucket"`
	TempDir      string          `yaml:"temp_dir"`
	Progress     bool            `yaml:"progress"`
	Linearize    *bool           `yaml:"linearize"`
	QPDFPath     string          `yaml:"qpdf_path"`
	LogLevel     string          `yaml:"log_level"`
	MetricsAddr  string          `yaml:"metrics_addr"`
	UserAgent    string          `yaml:"user_agent"`
	ReapMinAge   string          `yaml:"reap_min_age"`
	HTTP         yamlHTTPConfig  `yaml:"http"`
	Retry        yamlRetryConfig `yaml:"retry"`
}

type yamlHTTPConfig struct {
	ConnectTimeout string `yaml:"connect_timeout"`
	ReadTimeout    string `yaml:"read_timeout"`
	MaxPageSize    string `yaml:"max_page_size"`
}

type yamlRetryConfig struct {
	Attempts     int    `yaml:"attempts"`
	Backoff      string `yaml:"backoff"`
	MaxBackoff   string `yaml:"max_backoff"`
	ClientErrors bool   `yaml:"client_errors"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	if yc.SegmentSize != 0 {
		cfg.SegmentSize = yc.SegmentSize
	}
	if yc.OutputBucket != "" {
		cfg.OutputBucket = yc.OutputBucket
	}
	if yc.TempDir != "" {
		cfg.TempDir = yc.TempDir
	}
	cfg.Progress = yc.Progress
	if yc.Linearize != nil {
		cfg.Linearize = *yc.Linearize
	}
	if yc.QPDFPath != "" {
		cfg.QPDFPath = yc.QPDFPath
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.MetricsAddr != "" {
		cfg.MetricsAddr = yc.MetricsAddr
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"reap_min_age", yc.ReapMinAge, &cfg.ReapMinAge},
		{"http.connect_timeout", yc.HTTP.ConnectTimeout, &cfg.HTTP.ConnectTimeout},
		{"http.read_timeout", yc.HTTP.ReadTimeout, &cfg.HTTP.ReadTimeout},
		{"retry.backoff", yc.Retry.Backoff, &cfg.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &cfg.Retry.MaxBackoff},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if yc.HTTP.MaxPageSize != "" {
		size, err := progress.ParseBytes(yc.HTTP.MaxPageSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.max_page_size: %w", err)
		}
		cfg.HTTP.MaxPageSize = ByteSize(size)
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	cfg.Retry.ClientErrors = yc.Retry.ClientErrors

	return cfg, nil
}

// LoadFromEnv overlays environment variables onto c. Variables use the
// PAGEPRESS_ prefix, e.g. PAGEPRESS_SEGMENT_SIZE or
// PAGEPRESS_RETRY_ATTEMPTS. Unset variables leave c unchanged.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if _, err := docimage.NewURLBuilder(c.BaseURL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return errors.New("config: retry backoff must not be negative")
	}
	if c.HTTP.ConnectTimeout < 0 || c.HTTP.ReadTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	return nil
}

// Normalize raises concurrency and segment size to their floors.
func (c *Config) Normalize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.SegmentSize < MinSegmentSize {
		c.SegmentSize = MinSegmentSize
	}
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.SegmentSize != 0 {
		c.SegmentSize = override.SegmentSize
	}
	if override.OutputBucket != "" {
		c.OutputBucket = override.OutputBucket
	}
	if override.TempDir != "" {
		c.TempDir = override.TempDir
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.QPDFPath != "" {
		c.QPDFPath = override.QPDFPath
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.MetricsAddr != "" {
		c.MetricsAddr = override.MetricsAddr
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.ReapMinAge != 0 {
		c.ReapMinAge = override.ReapMinAge
	}
	if override.HTTP.ConnectTimeout != 0 {
		c.HTTP.ConnectTimeout = override.HTTP.ConnectTimeout
	}
	if override.HTTP.ReadTimeout != 0 {
		c.HTTP.ReadTimeout = override.HTTP.ReadTimeout
	}
	if override.HTTP.MaxPageSize != 0 {
		c.HTTP.MaxPageSize = override.HTTP.MaxPageSize
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Retry.ClientErrors {
		c.Retry.ClientErrors = true
	}
	return c
}

// HTTPOptions returns the fetcher options described by c.
func (c Config) HTTPOptions() pphttp.Options {
	opts := pphttp.DefaultOptions()
	opts.MaxIdleConnsPerHost = c.Concurrency + 2
	opts.ConnectTimeout = c.HTTP.ConnectTimeout
	opts.ReadTimeout = c.HTTP.ReadTimeout
	opts.MaxBodySize = int64(c.HTTP.MaxPageSize)
	opts.RetryAttempts = c.Retry.Attempts
	opts.RetryBackoff = c.Retry.Backoff
	opts.RetryMaxBackoff = c.Retry.MaxBackoff
	opts.RetryClientErrors = c.Retry.ClientErrors
	opts.UserAgent = c.UserAgent
	return opts
}
