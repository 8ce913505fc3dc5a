// Package pipeline drives one document from page range to published PDF.
//
// A job moves through Pending, Running, Merging and Done, or ends in
// Cancelled or Failed. The page range is split into segments that are
// processed strictly one after another:
//
//	for each segment:
//	    download pages (bounded concurrency)
//	    assemble present pages in page order
//	    persist the segment to the job's temporary store
//	merge all segments, linearize, publish
//
// Only one segment's pages are held in memory at a time. Missing pages are
// left out of the result, a segment without any page is skipped, and a job
// without any page fails with ErrNoPages. The job directory is removed
// however the job ends.
//
// # Usage
//
//	p, err := pipeline.New(pipeline.Options{
//	    BaseURL:     docimage.DefaultBaseURL,
//	    Concurrency: 6,
//	    Fetcher:     pphttp.NewClient(pphttp.DefaultOptions()),
//	    Linearizer:  pdf.QPDF{},
//	    Sink:        reporter,
//	})
//	if err != nil {
//	    return err
//	}
//	res, err := p.Run(ctx, job.Spec{Token: token, StartPage: 1, EndPage: 450, Output: "book.pdf"})
package pipeline
