package downloader

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ligustah/pagepress/internal/docimage"
	pphttp "github.com/ligustah/pagepress/internal/http"
)

// Fetcher fetches one URL. It reports failure through Result.OK rather than
// an error. *http.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) pphttp.Result
}

// Request describes one page range to download.
type Request struct {
	Token string

	// Start and End are 1-indexed and inclusive.
	Start int
	End   int

	// Concurrency caps the number of fetches in flight. Values below 1 are
	// treated as 1.
	Concurrency int

	// OnPageDone, if set, is called once for every page whose fetch ran,
	// from the goroutine that fetched it. It is not called for pages skipped
	// because ctx was already cancelled.
	OnPageDone func(page int, ok bool)
}

// PageResult is the outcome for one page. Data is nil and OK false when the
// page is absent.
type PageResult struct {
	Page int
	Data []byte
	OK   bool
}

// DownloadRange fetches every page in [req.Start, req.End] with at most
// req.Concurrency fetches in flight, and returns one result per page in
// ascending page order.
//
// It returns only after every page's task has finished. Cancellation is
// cooperative: pages not yet started are recorded as absent, retries stop
// at their next check, and requests already on the wire complete.
func DownloadRange(ctx context.Context, f Fetcher, urls *docimage.URLBuilder, req Request) []PageResult {
	if req.End < req.Start {
		return nil
	}
	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]PageResult, req.End-req.Start+1)
	for i := range results {
		results[i].Page = req.Start + i
	}

	gate := semaphore.NewWeighted(int64(concurrency))
	// The group carries no cancellation of its own: a failed page must not
	// cancel its siblings.
	var g errgroup.Group

	for i := range results {
		// Acquire only fails when ctx is done; remaining pages stay absent.
		if err := gate.Acquire(ctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer gate.Release(1)

			if ctx.Err() != nil {
				return nil
			}

			page := results[i].Page
			res := f.Fetch(ctx, urls.Build(page, req.Token))
			if res.OK {
				results[i].Data = res.Body
				results[i].OK = true
			}

			if req.OnPageDone != nil {
				req.OnPageDone(page, res.OK)
			}
			return nil
		})
	}

	g.Wait()
	return results
}

// Missing returns the page numbers of absent results.
func Missing(results []PageResult) []int {
	var pages []int
	for _, r := range results {
		if !r.OK {
			pages = append(pages, r.Page)
		}
	}
	return pages
}
