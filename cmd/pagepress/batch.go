package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ligustah/pagepress/internal/config"
)

// runBatch runs every job of a manifest, one at a time. A failed job does
// not stop the batch; an interrupt does.
func runBatch(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)

	var common commonFlags
	common.register(fs)
	manifest := fs.String("manifest", "", "YAML or JSON list of jobs (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: pagepress batch [options]

Run every job listed in a manifest, sequentially. Each entry has token,
start_page, end_page and output_filename:

  - token: 0b6c3f9e-...
    start_page: 1
    end_page: 450
    output_filename: book.pdf

The exit status reflects the worst job outcome.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *manifest == "" {
		fmt.Fprintln(os.Stderr, "Error: -manifest is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	specs, err := config.LoadManifest(*manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	r, err := newRunner(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errOpenBucket) {
			return ExitStorageError
		}
		return ExitGeneralError
	}
	defer r.close()

	worst := ExitSuccess
	var done, failed int
	for i, spec := range specs {
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "[pagepress] Batch interrupted, %d jobs not started\n", len(specs)-i)
			worst = worse(worst, ExitCancelled)
			break
		}

		fmt.Fprintf(os.Stderr, "[pagepress] Job %d/%d: %s\n", i+1, len(specs), spec)
		code := runJob(ctx, r.pipeline, spec)
		switch code {
		case ExitSuccess:
			done++
		case ExitCancelled:
		default:
			failed++
		}
		worst = worse(worst, code)
	}

	fmt.Fprintf(os.Stderr, "[pagepress] Batch: %d done, %d failed, %d total\n", done, failed, len(specs))
	return worst
}
