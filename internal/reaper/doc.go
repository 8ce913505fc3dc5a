// Package reaper deletes segment artifacts that earlier runs left behind.
//
// A job normally removes its own directory when it ends. Files survive
// when the process is killed mid-run; the reaper finds them by name
// (segment_<start>_<end>.pdf) and removes them once they are older than
// MinAge. A sweep never fails: problems are collected in the Report.
//
// # Usage
//
//	r := reaper.New(reaper.Options{Root: os.TempDir(), MinAge: time.Hour})
//	rep := r.Reap(ctx)
//	fmt.Printf("removed %d files\n", len(rep.Removed))
package reaper
