package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/pagepress/internal/config"
	pphttp "github.com/ligustah/pagepress/internal/http"
	"github.com/ligustah/pagepress/internal/job"
	pplog "github.com/ligustah/pagepress/internal/log"
	"github.com/ligustah/pagepress/internal/metrics"
	"github.com/ligustah/pagepress/internal/pdf"
	"github.com/ligustah/pagepress/internal/pipeline"
	"github.com/ligustah/pagepress/internal/progress"
	"github.com/ligustah/pagepress/internal/reaper"
)

// commonFlags are shared by fetch and batch. Zero values leave the
// configured value alone.
type commonFlags struct {
	configPath        string
	baseURL           string
	concurrency       int
	segmentSize       int
	bucket            string
	tempDir           string
	logLevel          string
	metricsAddr       string
	qpdfPath          string
	showProgress      bool
	noLinearize       bool
	retryAttempts     int
	retryBackoff      time.Duration
	retryClientErrors bool
	readTimeout       time.Duration
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.baseURL, "base-url", "", "DocImage endpoint (default "+config.Default().BaseURL+")")
	fs.IntVar(&c.concurrency, "concurrency", 0, "Max page fetches in flight (default 6)")
	fs.IntVar(&c.segmentSize, "segment-size", 0, "Pages per segment, minimum 20 (default 200)")
	fs.StringVar(&c.bucket, "bucket", "", "Publish to this bucket URL (s3://, gs://, file://) instead of the local filesystem")
	fs.StringVar(&c.tempDir, "temp-dir", "", "Directory for job scratch space (default OS temp dir)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
	fs.StringVar(&c.qpdfPath, "qpdf", "", "Path to the qpdf binary (default qpdf on PATH)")
	fs.BoolVar(&c.showProgress, "progress", false, "Show progress output")
	fs.BoolVar(&c.noLinearize, "no-linearize", false, "Skip linearization of the final PDF")
	fs.IntVar(&c.retryAttempts, "retry-attempts", 0, "Attempts per page (default 6)")
	fs.DurationVar(&c.retryBackoff, "retry-backoff", 0, "Base of the jittered retry backoff (default 500ms)")
	fs.BoolVar(&c.retryClientErrors, "retry-client-errors", false, "Retry 4xx responses instead of giving up on the page")
	fs.DurationVar(&c.readTimeout, "read-timeout", 0, "Per-request read timeout (default 30s)")
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(c commonFlags) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(c.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		BaseURL:      c.baseURL,
		Concurrency:  c.concurrency,
		SegmentSize:  c.segmentSize,
		OutputBucket: c.bucket,
		TempDir:      c.tempDir,
		Progress:     c.showProgress,
		QPDFPath:     c.qpdfPath,
		LogLevel:     c.logLevel,
		MetricsAddr:  c.metricsAddr,
		HTTP:         config.HTTPConfig{ReadTimeout: c.readTimeout},
		Retry: config.RetryConfig{
			Attempts:     c.retryAttempts,
			Backoff:      c.retryBackoff,
			ClientErrors: c.retryClientErrors,
		},
	})
	if c.noLinearize {
		cfg.Linearize = false
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupLogger installs the process logger at level.
func setupLogger(level string) (*zap.Logger, error) {
	lvl, err := pplog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := pplog.InitLog(lvl)
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[pagepress] Received interrupt, finishing in-flight pages...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

var errOpenBucket = errors.New("open bucket")

// runner holds everything shared by the jobs of one invocation.
type runner struct {
	pipeline *pipeline.Pipeline
	reporter *progress.Reporter
	bucket   *blob.Bucket
	stop     context.CancelFunc
	done     chan struct{}
}

func newRunner(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runner, error) {
	r := &runner{done: make(chan struct{})}

	sinks := []progress.Sink{progress.NewLogSink(logger.Named("fetch")), metrics.Sink{}}
	if cfg.Progress {
		r.reporter = progress.NewReporter(progress.Options{})
		r.reporter.Start()
		sinks = append(sinks, r.reporter)
	}
	sink := progress.Multi(sinks...)

	httpOpts := cfg.HTTPOptions()
	httpOpts.OnRetry = progress.RetryHook(sink)
	httpOpts.Logger = logger.Named("http")

	var publisher pipeline.Publisher = &pipeline.FilePublisher{Logger: logger.Named("publish")}
	if cfg.OutputBucket != "" {
		bkt, err := blob.OpenBucket(ctx, cfg.OutputBucket)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("%w: %w", errOpenBucket, err)
		}
		r.bucket = bkt
		publisher = &pipeline.BucketPublisher{Bucket: bkt}
	}

	var linearizer pipeline.Linearizer
	if cfg.Linearize {
		linearizer = pdf.QPDF{Path: cfg.QPDFPath}
	}

	p, err := pipeline.New(pipeline.Options{
		BaseURL:     cfg.BaseURL,
		Concurrency: cfg.Concurrency,
		SegmentSize: cfg.SegmentSize,
		TempDir:     cfg.TempDir,
		Fetcher:     pphttp.NewClient(httpOpts),
		Linearizer:  linearizer,
		Publisher:   publisher,
		Sink:        sink,
		Logger:      logger,
		Reaper: reaper.New(reaper.Options{
			Root:   cfg.TempDir,
			MinAge: cfg.ReapMinAge,
			Logger: logger,
		}),
	})
	if err != nil {
		r.close()
		return nil, err
	}
	r.pipeline = p

	if cfg.MetricsAddr == "" {
		close(r.done)
		return r, nil
	}
	listener, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	// The metrics server stops in close, not when ctx is cancelled.
	serverCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	r.stop = stop
	server := metrics.NewServer(cfg.MetricsAddr, listener)
	go func() {
		defer close(r.done)
		if err := server.Run(serverCtx); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return r, nil
}

func (r *runner) close() {
	if r.reporter != nil {
		r.reporter.Stop()
	}
	if r.bucket != nil {
		r.bucket.Close()
	}
	if r.stop != nil {
		r.stop()
		<-r.done
	}
}

// exitCode maps a job outcome to a process exit code.
func exitCode(res *pipeline.Result, err error) int {
	switch {
	case err == nil && res != nil && res.State == pipeline.Cancelled:
		return ExitCancelled
	case err == nil:
		return ExitSuccess
	case errors.Is(err, pipeline.ErrNoPages):
		return ExitNoPages
	case errors.Is(err, pipeline.ErrMerge):
		return ExitMergeFailed
	case errors.Is(err, pipeline.ErrPublish):
		return ExitStorageError
	case errors.Is(err, job.ErrInvalidRange):
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}

// severity orders exit codes for batch runs; higher is worse.
var severity = map[int]int{
	ExitSuccess:      0,
	ExitNoPages:      1,
	ExitMergeFailed:  2,
	ExitStorageError: 3,
	ExitGeneralError: 4,
	ExitInvalidArgs:  5,
	ExitCancelled:    6,
}

func worse(a, b int) int {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
