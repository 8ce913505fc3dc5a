// Package metrics exports pipeline counters to prometheus.
//
// [Sink] is a progress sink that turns events into counters:
//
//	pagepress_pages_total{result="ok|failed"}
//	pagepress_segments_total{result="ok|empty"}
//	pagepress_jobs_total{outcome="done|failed|cancelled"}
//	pagepress_fetch_retries_total{reason}
//
// [Server] serves them on /metrics for the lifetime of a run.
package metrics
