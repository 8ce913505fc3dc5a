// Package config defines configuration structures for the pagepress CLI.
//
// Configuration can be provided via, in increasing precedence:
//   - Built-in defaults (Default)
//   - YAML configuration file (LoadFromFile)
//   - Environment variables (PAGEPRESS_ prefix, LoadFromEnv)
//   - Command-line flags (Merge)
//
// # Structure
//
//	type Config struct {
//	    BaseURL      string
//	    Concurrency  int
//	    SegmentSize  int
//	    OutputBucket string
//	    Linearize    bool
//	    HTTP         HTTPConfig
//	    Retry        RetryConfig
//	    ...
//	}
//
// # Batch manifests
//
// LoadManifest reads a list of documents for `pagepress batch`:
//
//	[
//	  {"token": "...", "start_page": 1, "end_page": 450, "output_filename": "book.pdf"}
//	]
//
// YAML with the same keys is accepted too.
package config
