package progress

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies an event.
type Kind int

const (
	JobStarted Kind = iota + 1
	SegmentStarted
	PageDone
	SegmentDone
	Merging
	JobDone
	JobFailed
	JobCancelled
	Retry
)

var kindNames = map[Kind]string{
	JobStarted:     "job_started",
	SegmentStarted: "segment_started",
	PageDone:       "page_done",
	SegmentDone:    "segment_done",
	Merging:        "merging",
	JobDone:        "job_done",
	JobFailed:      "job_failed",
	JobCancelled:   "job_cancelled",
	Retry:          "retry",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is emitted by the pipeline as a job progresses. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind  Kind
	JobID string

	// Start and End are the job range for JobStarted and the segment range
	// for segment events.
	Start int
	End   int

	// Page and OK are set for PageDone.
	Page int
	OK   bool

	// Succeeded and Failed count pages, for SegmentDone and the terminal
	// job events.
	Succeeded int
	Failed    int

	// Segments is the number of segment artifacts, for Merging and JobDone.
	Segments int

	// Output and Size describe the published artifact, for JobDone.
	Output string
	Size   int64

	// Attempt and Delay describe a scheduled retry.
	Attempt int
	Delay   time.Duration

	// Err is the failure reason for JobFailed and Retry.
	Err error
}

// Sink receives events. Emit may be called from many goroutines at once.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans an event out to every non-nil sink, in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	switch len(m) {
	case 0:
		return Discard
	case 1:
		return m[0]
	}
	return m
}

// RetryHook returns a function suitable for http.Options.OnRetry that emits
// a Retry event to s.
func RetryHook(s Sink) func(attempt int, delay time.Duration, reason error) {
	return func(attempt int, delay time.Duration, reason error) {
		s.Emit(Event{Kind: Retry, Attempt: attempt, Delay: delay, Err: reason})
	}
}

// Recorder keeps every event it receives. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Kinds returns the kinds of all recorded events except PageDone and Retry,
// in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []Kind
	for _, e := range r.events {
		if e.Kind == PageDone || e.Kind == Retry {
			continue
		}
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
