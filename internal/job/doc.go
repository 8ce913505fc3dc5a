// Package job defines the unit of work for pagepress and how its page range
// is split into segments.
//
// A [Spec] names a document token, an inclusive 1-indexed page range and an
// output target. [Partition] cuts the range into [Segment] values of at most
// a fixed width:
//
//	Partition(1, 450, 200)
//	// [1-200] [201-400] [401-450]
package job
