package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/pagepress/internal/docimage"
	"github.com/ligustah/pagepress/internal/job"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, docimage.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 6, cfg.Concurrency)
	assert.Equal(t, 200, cfg.SegmentSize)
	assert.True(t, cfg.Linearize)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 6, cfg.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Backoff)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxBackoff)
	assert.False(t, cfg.Retry.ClientErrors)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
base_url: https://docs.example.com/DocImage.axd?v=2
concurrency: 12
segment_size: 50
output_bucket: s3://my-bucket?region=us-east-1
progress: true
linearize: false
reap_min_age: 1h
http:
  connect_timeout: 2s
  read_timeout: 10s
  max_page_size: 8MB
retry:
  attempts: 10
  backoff: 250ms
  max_backoff: 1m
  client_errors: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://docs.example.com/DocImage.axd?v=2", cfg.BaseURL)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, 50, cfg.SegmentSize)
	assert.Equal(t, "s3://my-bucket?region=us-east-1", cfg.OutputBucket)
	assert.True(t, cfg.Progress)
	assert.False(t, cfg.Linearize)
	assert.Equal(t, time.Hour, cfg.ReapMinAge)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, ByteSize(8*1024*1024), cfg.HTTP.MaxPageSize)
	assert.Equal(t, 10, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Backoff)
	assert.Equal(t, time.Minute, cfg.Retry.MaxBackoff)
	assert.True(t, cfg.Retry.ClientErrors)

	// Unset keys keep their defaults.
	assert.Equal(t, "qpdf", cfg.QPDFPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromYAMLBadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", "retry:\n  backoff: soon\n")
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry.backoff")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PAGEPRESS_CONCURRENCY", "3")
	t.Setenv("PAGEPRESS_SEGMENT_SIZE", "40")
	t.Setenv("PAGEPRESS_LINEARIZE", "false")
	t.Setenv("PAGEPRESS_HTTP_READ_TIMEOUT", "7s")
	t.Setenv("PAGEPRESS_HTTP_MAX_PAGE_SIZE", "1MB")
	t.Setenv("PAGEPRESS_RETRY_ATTEMPTS", "2")
	t.Setenv("PAGEPRESS_RETRY_BACKOFF", "100ms")

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 40, cfg.SegmentSize)
	assert.False(t, cfg.Linearize)
	assert.Equal(t, 7*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, ByteSize(1024*1024), cfg.HTTP.MaxPageSize)
	assert.Equal(t, 2, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Backoff)

	// Untouched values survive.
	assert.Equal(t, docimage.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ConnectTimeout)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("PAGEPRESS_CONCURRENCY", "lots")
	cfg := Default()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, true},
		{"relative base url", func(c *Config) { c.BaseURL = "/DocImage.axd" }, true},
		{"no attempts", func(c *Config) { c.Retry.Attempts = 0 }, true},
		{"negative backoff", func(c *Config) { c.Retry.Backoff = -time.Second }, true},
		{"negative timeout", func(c *Config) { c.HTTP.ReadTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 0
	cfg.SegmentSize = 5
	cfg.Normalize()

	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 20, cfg.SegmentSize)

	cfg.SegmentSize = 500
	cfg.Normalize()
	assert.Equal(t, 500, cfg.SegmentSize)
}

func TestMerge(t *testing.T) {
	base := Default()
	base.OutputBucket = "gs://bucket"

	merged := base.Merge(Config{
		Concurrency: 16,
		Retry:       RetryConfig{Attempts: 2},
	})

	assert.Equal(t, "gs://bucket", merged.OutputBucket)
	assert.Equal(t, 200, merged.SegmentSize)
	assert.Equal(t, 500*time.Millisecond, merged.Retry.Backoff)
	assert.Equal(t, 16, merged.Concurrency)
	assert.Equal(t, 2, merged.Retry.Attempts)
}

func TestHTTPOptions(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 10
	cfg.Retry.ClientErrors = true

	opts := cfg.HTTPOptions()
	assert.Equal(t, 12, opts.MaxIdleConnsPerHost)
	assert.Equal(t, 6, opts.RetryAttempts)
	assert.Equal(t, int64(64*1024*1024), opts.MaxBodySize)
	assert.True(t, opts.RetryClientErrors)
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadYAMLInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "invalid: [yaml: content")
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadManifestJSON(t *testing.T) {
	path := writeFile(t, "jobs.json", `[
  {"token": " T1 ", "start_page": 1, "end_page": 450, "output_filename": "book"},
  {"token": "T2", "start_page": 10, "end_page": 12, "output_filename": "notes.PDF"}
]`)

	specs, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, job.Spec{Token: "T1", StartPage: 1, EndPage: 450, Output: "book.pdf"}, specs[0])
	assert.Equal(t, "notes.PDF", specs[1].Output)
}

func TestLoadManifestYAML(t *testing.T) {
	path := writeFile(t, "jobs.yaml", `
- token: T
  start_page: 5
  end_page: 9
  output_filename: out/five.pdf
`)

	specs, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []job.Spec{{Token: "T", StartPage: 5, EndPage: 9, Output: "out/five.pdf"}}, specs)
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":       `[]`,
		"bad range":   `[{"token": "T", "start_page": 9, "end_page": 5, "output_filename": "x"}]`,
		"no token":    `[{"start_page": 1, "end_page": 5, "output_filename": "x"}]`,
		"not a list":  `{"token": "T"}`,
		"broken json": `[{"token": `,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadManifest(writeFile(t, "jobs.json", content))
			assert.Error(t, err)
		})
	}
}

func TestSaveManifestRoundTrip(t *testing.T) {
	specs := []job.Spec{
		{Token: "A", StartPage: 1, EndPage: 2, Output: "a.pdf"},
		{Token: "B", StartPage: 3, EndPage: 30, Output: "b.pdf"},
	}

	for _, name := range []string{"jobs.json", "jobs.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, SaveManifest(path, specs))

		loaded, err := LoadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, specs, loaded, name)
	}
}
