package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/ligustah/pagepress/internal/downloader"
)

// ErrEmpty is returned when persisting a composite with no pages.
var ErrEmpty = errors.New("assembler: composite has no pages")

// Encoder turns one page image into a one-page document.
type Encoder interface {
	Encode(image []byte) ([]byte, error)
}

// Merger concatenates documents, in order, into w.
type Merger interface {
	Merge(ctx context.Context, docs []io.ReadSeeker, w io.Writer) error
}

// Composite is a growing, ordered sequence of one-page documents.
type Composite struct {
	merger Merger
	pages  []int
	docs   [][]byte
}

// NewComposite returns an empty composite that persists through m.
func NewComposite(m Merger) *Composite {
	return &Composite{merger: m}
}

// Append adds a one-page document for page at the end.
func (c *Composite) Append(page int, doc []byte) {
	c.pages = append(c.pages, page)
	c.docs = append(c.docs, doc)
}

// Len returns the number of pages.
func (c *Composite) Len() int {
	return len(c.docs)
}

// Pages returns the page numbers in order.
func (c *Composite) Pages() []int {
	return slices.Clone(c.pages)
}

// Persist merges the pages into one document written to w.
func (c *Composite) Persist(ctx context.Context, w io.Writer) error {
	if len(c.docs) == 0 {
		return ErrEmpty
	}
	rs := make([]io.ReadSeeker, len(c.docs))
	for i, d := range c.docs {
		rs[i] = bytes.NewReader(d)
	}
	if err := c.merger.Merge(ctx, rs, w); err != nil {
		return fmt.Errorf("persist composite of %d pages: %w", len(c.docs), err)
	}
	return nil
}

// Stats counts the pages of one Assemble call.
type Stats struct {
	OK          int
	Failed      int
	FailedPages []int
}

// Assembler builds segment composites from downloaded pages.
type Assembler struct {
	enc    Encoder
	merger Merger
	log    *zap.Logger
}

// New returns an Assembler. A nil logger discards logs.
func New(enc Encoder, m Merger, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{enc: enc, merger: m, log: logger}
}

// Assemble encodes each present page and appends it, in page order, to a new
// composite. Absent, empty or unencodable pages are skipped and counted as
// failed. The raw image bytes in results are released as they are consumed.
//
// It returns a nil composite when no page succeeded.
func (a *Assembler) Assemble(results []downloader.PageResult) (*Composite, Stats) {
	if !slices.IsSortedFunc(results, byPage) {
		slices.SortStableFunc(results, byPage)
	}

	var stats Stats
	c := NewComposite(a.merger)

	for i := range results {
		r := &results[i]
		if !r.OK || len(r.Data) == 0 {
			a.log.Warn("page missing", zap.Int("page", r.Page))
			stats.Failed++
			stats.FailedPages = append(stats.FailedPages, r.Page)
			r.Data = nil
			continue
		}

		doc, err := a.enc.Encode(r.Data)
		r.Data = nil
		if err != nil {
			a.log.Warn("page conversion failed", zap.Int("page", r.Page), zap.Error(err))
			stats.Failed++
			stats.FailedPages = append(stats.FailedPages, r.Page)
			continue
		}

		c.Append(r.Page, doc)
		stats.OK++
	}

	if c.Len() == 0 {
		return nil, stats
	}
	return c, stats
}

func byPage(a, b downloader.PageResult) int {
	return a.Page - b.Page
}
