// Package progress carries pipeline events to whoever renders them.
//
// The pipeline emits [Event] values to a [Sink]. Three sinks ship here: the
// console [Reporter], the structured [LogSink], and [Recorder] for tests.
// [Multi] fans out to several at once. Sinks must be safe for concurrent
// use because page events arrive from the download goroutines.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{Output: os.Stderr})
//	reporter.Start()
//	defer reporter.Stop()
//
//	sink := progress.Multi(reporter, progress.NewLogSink(logger))
//
// # Output Format
//
//	[pagepress] Job 3f0c...: pages 1-450 (450 pages)
//	[pagepress] Progress: 45.2% | 203/450 pages | ok 200 | failed 3 | segment 201-400 | ETA 1m 3s
//	[pagepress] Segment 1-200: 198 ok | 2 failed
//	[pagepress] Merging 3 segments...
//	[pagepress] Wrote out.pdf (447 pages, 212.40 MB) in 4m 12s
package progress
