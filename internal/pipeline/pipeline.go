package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ligustah/pagepress/internal/assembler"
	"github.com/ligustah/pagepress/internal/docimage"
	"github.com/ligustah/pagepress/internal/downloader"
	"github.com/ligustah/pagepress/internal/job"
	"github.com/ligustah/pagepress/internal/pdf"
	"github.com/ligustah/pagepress/internal/progress"
	"github.com/ligustah/pagepress/internal/reaper"
	"github.com/ligustah/pagepress/pkg/segstore"
)

// Common errors.
var (
	ErrNoPages = errors.New("no pages succeeded; nothing to write")
	ErrMerge   = errors.New("merge failed")
	ErrPublish = errors.New("publish failed")
)

const (
	// MinSegmentSize is the smallest segment width Run uses.
	MinSegmentSize = 20

	// DefaultSegmentSize is used when Options.SegmentSize is zero.
	DefaultSegmentSize = 200

	mergedName     = "merged.pdf"
	linearizedName = "linearized.pdf"
)

// State is where a job is in its lifecycle.
type State int

const (
	Pending State = iota
	Running
	Merging
	Done
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Merging:
		return "merging"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Linearizer rewrites the PDF at in as a linearized PDF at out.
// pdf.QPDF implements it.
type Linearizer interface {
	Linearize(ctx context.Context, in, out string) error
}

// Options configures a Pipeline.
type Options struct {
	// BaseURL is the DocImage endpoint. Required.
	BaseURL string

	// Concurrency caps in-flight fetches within a segment. Minimum 1.
	Concurrency int

	// SegmentSize is the number of pages per segment. Values below
	// MinSegmentSize are raised to it. Default: DefaultSegmentSize.
	SegmentSize int

	// TempDir holds the job directories. Default: the OS temp dir.
	TempDir string

	// Fetcher downloads one page. Required.
	Fetcher downloader.Fetcher

	// Encoder and Merger default to the pdfcpu implementations.
	Encoder assembler.Encoder
	Merger  assembler.Merger

	// Linearizer, if set, linearizes the merged document.
	Linearizer Linearizer

	// Publisher moves the final document to its target.
	// Default: FilePublisher.
	Publisher Publisher

	Sink   progress.Sink
	Logger *zap.Logger

	// Reaper, if set, sweeps leftovers at the end of every job.
	Reaper *reaper.Reaper
}

// Result describes a finished job.
type Result struct {
	JobID string
	State State

	// Output and Size describe the published document when State is Done.
	Output string
	Size   int64

	// Segments is the number of segments that produced an artifact.
	Segments     int
	Succeeded    int
	Failed       int
	MissingPages []int

	Linearized bool
	Duration   time.Duration
}

// Pipeline runs jobs one segment at a time.
type Pipeline struct {
	urls        *docimage.URLBuilder
	concurrency int
	segmentSize int
	tempDir     string
	fetcher     downloader.Fetcher
	assembler   *assembler.Assembler
	merger      assembler.Merger
	linearizer  Linearizer
	publisher   Publisher
	sink        progress.Sink
	logger      *zap.Logger
	reaper      *reaper.Reaper

	warnLinearizeOnce sync.Once
}

// New returns a Pipeline for opts.
func New(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	urls, err := docimage.NewURLBuilder(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pipeline")

	segmentSize := opts.SegmentSize
	if segmentSize == 0 {
		segmentSize = DefaultSegmentSize
	}
	segmentSize = max(segmentSize, MinSegmentSize)

	var enc assembler.Encoder = pdf.Encoder{}
	if opts.Encoder != nil {
		enc = opts.Encoder
	}
	var merger assembler.Merger = pdf.Merger{}
	if opts.Merger != nil {
		merger = opts.Merger
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = &FilePublisher{Logger: logger}
	}

	return &Pipeline{
		urls:        urls,
		concurrency: max(opts.Concurrency, 1),
		segmentSize: segmentSize,
		tempDir:     opts.TempDir,
		fetcher:     opts.Fetcher,
		assembler:   assembler.New(enc, merger, logger.Named("assembler")),
		merger:      merger,
		linearizer:  opts.Linearizer,
		publisher:   publisher,
		sink:        progress.Multi(opts.Sink),
		logger:      logger,
		reaper:      opts.Reaper,
	}, nil
}

// SegmentSize returns the effective segment width.
func (p *Pipeline) SegmentSize() int {
	return p.segmentSize
}

// Run fetches, assembles and publishes one document.
//
// Cancelling ctx is not an error: Run stops at the next segment boundary
// and returns a Result in state Cancelled with a nil error. Once merging
// has started the job runs to completion. Every page failure is absorbed;
// Run fails only for an invalid spec, ErrNoPages, storage errors, ErrMerge
// and ErrPublish. Temporary files are removed in every case.
func (p *Pipeline) Run(ctx context.Context, spec job.Spec) (*Result, error) {
	spec = spec.WithID()
	res := &Result{JobID: spec.ID, Output: spec.Output, State: Pending}
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	log := p.logger.With(zap.String("job", spec.ID))

	if err := spec.Validate(); err != nil {
		return p.fail(res, err)
	}

	p.sink.Emit(progress.Event{Kind: progress.JobStarted, JobID: spec.ID, Start: spec.StartPage, End: spec.EndPage})
	if ctx.Err() != nil {
		return p.cancel(res), nil
	}

	store, err := segstore.CreateTemp(context.WithoutCancel(ctx), p.tempDir, spec.ID)
	if err != nil {
		return p.fail(res, err)
	}
	defer p.cleanup(context.WithoutCancel(ctx), store, log)

	res.State = Running
	for _, seg := range job.Partition(spec.StartPage, spec.EndPage, p.segmentSize) {
		if ctx.Err() != nil {
			return p.cancel(res), nil
		}

		cancelled, err := p.runSegment(ctx, store, spec, seg, res, log)
		if err != nil {
			return p.fail(res, err)
		}
		if cancelled {
			return p.cancel(res), nil
		}
	}

	segs := store.Segments()
	res.Segments = len(segs)
	if len(segs) == 0 {
		return p.fail(res, ErrNoPages)
	}

	res.State = Merging
	p.sink.Emit(progress.Event{Kind: progress.Merging, JobID: spec.ID, Segments: len(segs)})

	// From here on the job runs to completion.
	mctx := context.WithoutCancel(ctx)
	final, err := p.merge(mctx, store, segs, res, log)
	if err != nil {
		return p.fail(res, fmt.Errorf("%w: %w", ErrMerge, err))
	}

	fi, err := os.Stat(final)
	if err != nil {
		return p.fail(res, fmt.Errorf("%w: %w", ErrMerge, err))
	}
	if err := p.publisher.Publish(mctx, final, spec.Output); err != nil {
		return p.fail(res, fmt.Errorf("%w: %s: %w", ErrPublish, spec.Output, err))
	}

	res.State = Done
	res.Size = fi.Size()
	p.sink.Emit(progress.Event{
		Kind:      progress.JobDone,
		JobID:     spec.ID,
		Output:    spec.Output,
		Size:      res.Size,
		Segments:  res.Segments,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	})
	return res, nil
}

// runSegment downloads, assembles and persists one segment. It reports
// cancelled when ctx was cancelled during the download; the segment is then
// discarded, but the pages fetched so far are still counted.
func (p *Pipeline) runSegment(ctx context.Context, store *segstore.Store, spec job.Spec, seg job.Segment, res *Result, log *zap.Logger) (cancelled bool, err error) {
	p.sink.Emit(progress.Event{Kind: progress.SegmentStarted, JobID: spec.ID, Start: seg.Start, End: seg.End})

	var fetchedOK, fetchedFailed atomic.Int64
	results := downloader.DownloadRange(ctx, p.fetcher, p.urls, downloader.Request{
		Token:       spec.Token,
		Start:       seg.Start,
		End:         seg.End,
		Concurrency: p.concurrency,
		OnPageDone: func(page int, ok bool) {
			if ok {
				fetchedOK.Add(1)
			} else {
				fetchedFailed.Add(1)
			}
			p.sink.Emit(progress.Event{Kind: progress.PageDone, JobID: spec.ID, Page: page, OK: ok})
		},
	})
	if ctx.Err() != nil {
		succeeded, failed := int(fetchedOK.Load()), int(fetchedFailed.Load())
		res.Succeeded += succeeded
		res.Failed += failed
		p.sink.Emit(progress.Event{
			Kind:      progress.SegmentDone,
			JobID:     spec.ID,
			Start:     seg.Start,
			End:       seg.End,
			Succeeded: succeeded,
			Failed:    failed,
		})
		return true, nil
	}

	composite, stats := p.assembler.Assemble(results)
	res.Succeeded += stats.OK
	res.Failed += stats.Failed
	res.MissingPages = append(res.MissingPages, stats.FailedPages...)

	done := progress.Event{
		Kind:      progress.SegmentDone,
		JobID:     spec.ID,
		Start:     seg.Start,
		End:       seg.End,
		Succeeded: stats.OK,
		Failed:    stats.Failed,
	}

	if composite == nil {
		log.Warn("segment produced no pages", zap.Int("start", seg.Start), zap.Int("end", seg.End))
		p.sink.Emit(done)
		return false, nil
	}

	pctx := context.WithoutCancel(ctx)
	_, err = store.Put(pctx, seg.Start, seg.End, composite.Len(), func(w io.Writer) error {
		return composite.Persist(pctx, w)
	})
	if err != nil {
		return false, fmt.Errorf("persist segment %d-%d: %w", seg.Start, seg.End, err)
	}

	p.sink.Emit(done)
	return false, nil
}

// merge concatenates the segments into one file in the job directory and
// linearizes it. It returns the path of the file to publish.
func (p *Pipeline) merge(ctx context.Context, store *segstore.Store, segs []segstore.SegmentInfo, res *Result, log *zap.Logger) (string, error) {
	v, err := store.Validate(ctx)
	if err != nil {
		return "", err
	}
	if !v.Valid {
		return "", fmt.Errorf("segments incomplete: %s", strings.Join(v.Errors, "; "))
	}

	docs := make([]io.ReadSeeker, 0, len(segs))
	for _, seg := range segs {
		if err := store.Verify(ctx, seg); err != nil {
			return "", err
		}
		path, ok := store.LocalPath(seg)
		if !ok {
			return "", fmt.Errorf("segment %s has no local file", seg.Object)
		}
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		docs = append(docs, f)
	}

	merged := filepath.Join(store.Dir(), mergedName)
	if err := writeFile(merged, func(w io.Writer) error {
		return p.merger.Merge(ctx, docs, w)
	}); err != nil {
		return "", err
	}

	if p.linearizer == nil {
		return merged, nil
	}

	linearized := filepath.Join(store.Dir(), linearizedName)
	err = p.linearizer.Linearize(ctx, merged, linearized)
	switch {
	case errors.Is(err, pdf.ErrLinearizerNotFound):
		p.warnLinearizeOnce.Do(func() {
			log.Warn("linearizer not found; publishing without linearization", zap.Error(err))
		})
		return merged, nil
	case err != nil:
		return "", fmt.Errorf("linearize: %w", err)
	}

	res.Linearized = true
	return linearized, nil
}

func (p *Pipeline) fail(res *Result, err error) (*Result, error) {
	res.State = Failed
	p.sink.Emit(progress.Event{
		Kind:      progress.JobFailed,
		JobID:     res.JobID,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Err:       err,
	})
	return res, err
}

func (p *Pipeline) cancel(res *Result) *Result {
	res.State = Cancelled
	p.sink.Emit(progress.Event{
		Kind:      progress.JobCancelled,
		JobID:     res.JobID,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	})
	return res
}

// cleanup never fails the job; problems are logged.
func (p *Pipeline) cleanup(ctx context.Context, store *segstore.Store, log *zap.Logger) {
	if err := store.Destroy(ctx); err != nil {
		log.Warn("failed to remove job directory", zap.String("dir", store.Dir()), zap.Error(err))
	}
	if p.reaper != nil {
		p.reaper.Reap(ctx)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
