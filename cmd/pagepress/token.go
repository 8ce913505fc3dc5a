package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ligustah/pagepress/internal/docimage"
	pphttp "github.com/ligustah/pagepress/internal/http"
)

// runToken prints the document token referenced by a viewer page.
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ExitOnError)

	viewer := fs.String("url", "", "Viewer page URL (required)")
	configPath := fs.String("config", "", "YAML configuration file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: pagepress token [options]

Fetch a viewer page and print the document token it references. The page is
searched first, then up to 20 of its external scripts.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *viewer == "" {
		fmt.Fprintln(os.Stderr, "Error: -url is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(commonFlags{configPath: *configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	tok, err := docimage.DiscoverToken(ctx, pphttp.NewClient(cfg.HTTPOptions()), *viewer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, docimage.ErrTokenNotFound) {
			return ExitSourceError
		}
		return ExitGeneralError
	}

	fmt.Fprintln(stdout, tok)
	return ExitSuccess
}
