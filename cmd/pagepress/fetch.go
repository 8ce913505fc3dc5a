package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ligustah/pagepress/internal/docimage"
	pphttp "github.com/ligustah/pagepress/internal/http"
	"github.com/ligustah/pagepress/internal/job"
	"github.com/ligustah/pagepress/internal/pipeline"
	"github.com/ligustah/pagepress/internal/progress"
)

// runFetch downloads one page range and publishes it as a single PDF.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)

	var common commonFlags
	common.register(fs)
	token := fs.String("token", "", "Document token")
	viewer := fs.String("viewer", "", "Viewer page URL to read the token from, instead of -token")
	start := fs.Int("start", 1, "First page (1-indexed)")
	end := fs.Int("end", 0, "Last page, inclusive (required)")
	output := fs.String("output", "", "Output file path, or object key with -bucket (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: pagepress fetch [options]

Download pages -start through -end of a document, assemble them segment by
segment, merge and linearize the result, and write it to -output. Pages that
cannot be fetched are left out.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if (*token == "" && *viewer == "") || *end == 0 || *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -token (or -viewer), -end and -output are required")
		fs.Usage()
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

	if *viewer != "" {
		tok, err := docimage.DiscoverToken(ctx, pphttp.NewClient(cfg.HTTPOptions()), *viewer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitSourceError
		}
		logger.Info("discovered token", zap.String("token", tok))
		*token = tok
	}

	spec := job.Spec{
		Token:     strings.TrimSpace(*token),
		StartPage: *start,
		EndPage:   *end,
		Output:    *output,
	}
	if err := spec.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	r, err := newRunner(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errOpenBucket) {
			return ExitStorageError
		}
		return ExitGeneralError
	}
	defer r.close()

	return runJob(ctx, r.pipeline, spec)
}

// runJob runs one job and reports its outcome on stderr.
func runJob(ctx context.Context, p *pipeline.Pipeline, spec job.Spec) int {
	res, err := p.Run(ctx, spec)
	code := exitCode(res, err)

	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "[pagepress] %s: %v\n", spec.Output, err)
	case res.State == pipeline.Cancelled:
		fmt.Fprintf(os.Stderr, "[pagepress] %s: cancelled, nothing written\n", spec.Output)
	default:
		fmt.Fprintf(os.Stderr, "[pagepress] Wrote %s: %d pages, %d missing, %s\n",
			res.Output, res.Succeeded, res.Failed, progress.FormatBytes(res.Size))
		if len(res.MissingPages) > 0 {
			fmt.Fprintf(os.Stderr, "[pagepress] Missing pages: %s\n", formatPages(res.MissingPages))
		}
	}

	if errors.Is(err, pipeline.ErrNoPages) {
		fmt.Fprintln(os.Stderr, "[pagepress] Check the token and page range")
	}
	return code
}

// formatPages renders ascending page numbers as compact ranges: "3, 7-9".
func formatPages(pages []int) string {
	var b strings.Builder
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		if i == j {
			fmt.Fprintf(&b, "%d", pages[i])
		} else {
			fmt.Fprintf(&b, "%d-%d", pages[i], pages[j])
		}
		i = j + 1
	}
	return b.String()
}
