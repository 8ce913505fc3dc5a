package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ligustah/pagepress/internal/reaper"
)

// runReap removes segment files left behind by interrupted runs.
func runReap(args []string) int {
	fs := flag.NewFlagSet("reap", flag.ExitOnError)

	root := fs.String("root", "", "Directory to sweep (default configured temp dir)")
	minAge := fs.Duration("min-age", time.Hour, "Only remove files older than this")
	configPath := fs.String("config", "", "YAML configuration file")
	verbose := fs.Bool("v", false, "List removed files")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: pagepress reap [options]

Remove segment_<start>_<end>.pdf files and empty pagepress-job-* directories
left in the temp directory by interrupted runs. Jobs that updated their
manifest recently are left alone. Never fails.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(commonFlags{configPath: *configPath, tempDir: *root})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := reaper.New(reaper.Options{Root: cfg.TempDir, MinAge: *minAge})
	rep := r.Reap(ctx)

	if *verbose {
		for _, path := range rep.Removed {
			fmt.Fprintln(stdout, path)
		}
		for _, live := range rep.Live {
			m := live.Manifest
			fmt.Fprintf(stdout, "kept %s: job %s running, %d segments, updated %s\n",
				live.Dir, m.JobID, len(m.Segments), m.UpdatedAt.Format(time.RFC3339))
		}
	}
	for _, err := range rep.Errors {
		fmt.Fprintf(os.Stderr, "[pagepress] Warning: %v\n", err)
	}
	fmt.Fprintf(os.Stderr, "[pagepress] Removed %d files from %s\n", len(rep.Removed), r.Root())
	return ExitSuccess
}
