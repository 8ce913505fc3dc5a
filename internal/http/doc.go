// Package http provides the retrying HTTP client used to fetch page images.
//
// This package handles:
//   - Connection pooling sized for the download concurrency
//   - Connect and read timeouts per attempt
//   - Retry of 429/500/502/503/504 honoring Retry-After
//   - Full-jitter exponential backoff for transport errors
//   - Cooperative cancellation that never aborts a request on the wire
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    MaxIdleConnsPerHost: concurrency + 2,
//	    RetryAttempts:       6,
//	})
//
//	res := client.Fetch(ctx, pageURL)
//	if !res.OK {
//	    // page is absent: res.Err says why
//	}
package http
