package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information. It is a Sink.
type Reporter struct {
	opts Options

	mu       sync.Mutex
	jobStart time.Time
	jobID    string
	segStart int
	segEnd   int
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopped  bool

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.updateLoop()
}

// Stop stops the progress reporter and waits for its last line.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Emit updates counters and prints job and segment transitions.
func (r *Reporter) Emit(e Event) {
	switch e.Kind {
	case PageDone:
		if e.OK {
			r.succeeded.Add(1)
		} else {
			r.failed.Add(1)
		}
	case Retry:
		r.retries.Add(1)
	case JobStarted:
		r.total.Store(int64(e.End - e.Start + 1))
		r.succeeded.Store(0)
		r.failed.Store(0)
		r.retries.Store(0)
		r.mu.Lock()
		r.jobStart = time.Now()
		r.jobID = e.JobID
		r.segStart, r.segEnd = 0, 0
		r.mu.Unlock()
		r.printf("[pagepress] Job %s: pages %d-%d (%d pages)\n", e.JobID, e.Start, e.End, e.End-e.Start+1)
	case SegmentStarted:
		r.mu.Lock()
		r.segStart, r.segEnd = e.Start, e.End
		r.mu.Unlock()
	case SegmentDone:
		r.printf("\r[pagepress] Segment %d-%d: %d ok | %d failed                    \n", e.Start, e.End, e.Succeeded, e.Failed)
	case Merging:
		r.printf("[pagepress] Merging %d segments...\n", e.Segments)
	case JobDone:
		r.printf("[pagepress] Wrote %s (%d pages, %s) in %s\n", e.Output, e.Succeeded, formatBytes(e.Size), formatDuration(r.elapsed()))
	case JobFailed:
		r.printf("[pagepress] Job %s failed: %v\n", e.JobID, e.Err)
	case JobCancelled:
		r.printf("[pagepress] Job %s cancelled after %d pages\n", e.JobID, e.Succeeded+e.Failed)
	}
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Output, format, args...)
}

func (r *Reporter) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobStart.IsZero() {
		return 0
	}
	return time.Since(r.jobStart)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printProgress()
			r.printf("\n")
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	total := r.total.Load()
	if total == 0 {
		return
	}
	ok := r.succeeded.Load()
	failed := r.failed.Load()
	done := ok + failed

	r.mu.Lock()
	defer r.mu.Unlock()

	percent := float64(done) / float64(total) * 100

	eta := "calculating..."
	if elapsed := time.Since(r.jobStart); done > 0 && elapsed > 0 {
		perPage := elapsed / time.Duration(done)
		eta = formatDuration(perPage * time.Duration(total-done))
	}

	segment := "-"
	if r.segEnd > 0 {
		segment = fmt.Sprintf("%d-%d", r.segStart, r.segEnd)
	}

	fmt.Fprintf(r.opts.Output, "\r[pagepress] Progress: %.1f%% | %d/%d pages | ok %d | failed %d | segment %s | ETA %s    ",
		percent,
		done,
		total,
		ok,
		failed,
		segment,
		eta,
	)
}

// Counts returns the pages seen so far in the current job.
func (r *Reporter) Counts() (succeeded, failed int64) {
	return r.succeeded.Load(), r.failed.Load()
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string (e.g., "64MB").
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = trimSuffix(s, " ")

	switch {
	case hasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "KB"):
		multiplier = 1024
		s = s[:len(s)-2]
	case hasSuffix(s, "B"):
		s = s[:len(s)-1]
	}

	var value float64
	_, err := fmt.Sscanf(s, "%f", &value)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func trimSuffix(s, suffix string) string {
	for hasSuffix(s, suffix) {
		s = s[:len(s)-len(suffix)]
	}
	return s
}
