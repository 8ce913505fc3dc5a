package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ligustah/pagepress/pkg/segstore"
)

// ErrInvalidRange is returned when a page range is empty, not 1-indexed or
// past MaxPage.
var ErrInvalidRange = errors.New("job: invalid page range")

// MaxPage is the highest page number a job may reference.
const MaxPage = 1_000_000

// Spec describes one document to fetch and assemble.
// It is treated as immutable once handed to the pipeline.
type Spec struct {
	// ID scopes temporary storage for the job. Assigned by WithID when empty.
	ID string

	// Token identifies the document on the remote service.
	Token string

	// StartPage and EndPage are 1-indexed and inclusive.
	StartPage int
	EndPage   int

	// Output is the path or object key of the final artifact.
	Output string
}

// Validate checks that the spec can be run.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Token) == "" {
		return errors.New("job: token is required")
	}
	if s.StartPage < 1 || s.EndPage < s.StartPage || s.EndPage > MaxPage {
		return fmt.Errorf("%w: %d-%d", ErrInvalidRange, s.StartPage, s.EndPage)
	}
	if strings.TrimSpace(s.Output) == "" {
		return errors.New("job: output is required")
	}
	return nil
}

// Pages returns the number of pages in the range.
func (s Spec) Pages() int {
	return s.EndPage - s.StartPage + 1
}

// WithID returns a copy of s with a fresh ID if it has none.
func (s Spec) WithID() Spec {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return s
}

// String implements fmt.Stringer.
func (s Spec) String() string {
	return fmt.Sprintf("%s [%d-%d]", s.Output, s.StartPage, s.EndPage)
}

// Segment is a contiguous, inclusive sub-range of a job's pages.
type Segment struct {
	Index int // 1-based position within the job
	Start int
	End   int
}

// Pages returns the number of pages in the segment.
func (s Segment) Pages() int {
	return s.End - s.Start + 1
}

// Name returns the artifact name for the segment, encoding its page range.
func (s Segment) Name() string {
	return segstore.ObjectName(s.Start, s.End)
}

// Partition splits [start, end] into consecutive segments of at most size
// pages. The segments are ordered, do not overlap and cover the range
// exactly once. It returns nil for an empty range or non-positive size.
func Partition(start, end, size int) []Segment {
	if size <= 0 || end < start {
		return nil
	}
	var segments []Segment
	for cur := start; ; {
		// Neither expression overflows for non-negative pages.
		segEnd := end
		if end-cur >= size {
			segEnd = cur + size - 1
		}
		segments = append(segments, Segment{
			Index: len(segments) + 1,
			Start: cur,
			End:   segEnd,
		})
		if segEnd == end {
			return segments
		}
		cur = segEnd + 1
	}
}
