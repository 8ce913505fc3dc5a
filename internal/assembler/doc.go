// Package assembler turns one segment's downloaded pages into a single
// document.
//
// [Assembler.Assemble] encodes every present page into a one-page document
// and appends it to a [Composite] in ascending page order. Missing pages are
// skipped, never padded. Persisting a composite goes through the [Merger],
// so assembly can be tested without a real PDF engine.
//
// # Usage
//
//	a := assembler.New(pdf.Encoder{}, pdf.Merger{}, logger)
//	composite, stats := a.Assemble(results)
//	if composite == nil {
//	    // segment contributed nothing
//	}
//	err := composite.Persist(ctx, w)
package assembler
