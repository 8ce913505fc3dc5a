package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitSourceError  = 3
	ExitNoPages      = 4
	ExitStorageError = 5
	ExitCancelled    = 6
	ExitMergeFailed  = 7
)

// stdout receives command results; progress and logs go to stderr.
var stdout io.Writer = os.Stdout

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "fetch":
		return runFetch(cmdArgs)
	case "batch":
		return runBatch(cmdArgs)
	case "token":
		return runToken(cmdArgs)
	case "reap":
		return runReap(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: pagepress <command> [options]

Commands:
  fetch     Download a page range from DocImage and write it as one PDF
  batch     Run every job in a YAML or JSON manifest, one after another
  token     Find the document token on a viewer page
  reap      Remove segment files left behind by interrupted runs

Configuration is read from -config, then PAGEPRESS_* environment
variables, then flags.

Run 'pagepress <command> -h' for command-specific help.`)
}
