// Package segstore persists the intermediate segment documents of one job.
//
// A Store holds one object per segment, named after its page range
// (segment_<start>_<end>.pdf), and a manifest.json recording each segment's
// range, size, SHA256 checksum and page count. The manifest is rewritten
// after every Put, so a store can be reopened with Load.
//
// Any gocloud.dev/blob bucket works: mem://, file://, s3://, gs://.
// CreateTemp is the common case: a fileblob bucket in a fresh directory
// that Destroy removes again.
//
// # Writing
//
//	s, err := segstore.CreateTemp(ctx, os.TempDir(), jobID)
//	defer s.Destroy(ctx)
//
//	info, err := s.Put(ctx, 1, 200, pages, func(w io.Writer) error {
//	    return composite.Persist(ctx, w)
//	})
//
// If the write function fails, the object is not committed and the
// manifest is left unchanged.
//
// # Reading
//
//	for _, seg := range s.Segments() {
//	    data, err := s.ReadAll(ctx, seg) // checksum verified
//	}
//
// # Validation
//
// Validate checks every segment exists with the recorded size, without
// reading the data:
//
//	result, err := s.Validate(ctx)
//	if !result.Valid {
//	    for _, e := range result.Errors {
//	        fmt.Println(e)
//	    }
//	}
package segstore
