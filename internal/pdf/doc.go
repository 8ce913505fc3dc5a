// Package pdf holds the document primitives the pipeline treats as opaque:
// one-page encoding of an image, page-order merge, page counting, and
// linearization.
//
// Encoding, merging and counting use pdfcpu. Linearization shells out to
// qpdf, which must be installed separately.
//
// # Usage
//
//	page, err := pdf.Encoder{}.Encode(pngBytes)
//
//	var out bytes.Buffer
//	err = pdf.Merger{}.Merge(ctx, []io.ReadSeeker{a, b}, &out)
//
//	err = pdf.QPDF{}.Linearize(ctx, "merged.pdf", "final.pdf")
package pdf
