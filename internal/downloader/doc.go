// Package downloader fetches a range of pages concurrently.
//
// Each page runs in its own goroutine, admitted through a weighted semaphore
// so that no more than the configured number of fetches are in flight at
// once. Results come back indexed by page, in ascending order, regardless of
// the order in which fetches completed.
//
// # Usage
//
//	results := downloader.DownloadRange(ctx, client, urls, downloader.Request{
//	    Token:       token,
//	    Start:       201,
//	    End:         400,
//	    Concurrency: 6,
//	    OnPageDone: func(page int, ok bool) {
//	        sink.Emit(progress.PageDone(page, ok))
//	    },
//	})
//
// # Failures and cancellation
//
// A failed page is recorded as absent and never stops its siblings. When ctx
// is cancelled, pages that have not started are recorded as absent without
// a callback, retries stop at their next check, and requests already on the
// wire run to completion. DownloadRange always returns a result for every
// requested page.
package downloader
