package segstore

import (
	"context"
	"fmt"
)

// ValidationResult contains the results of validating a store.
type ValidationResult struct {
	Valid           bool     // true if all segments exist and sizes match
	TotalSize       int64    // total size from manifest
	SegmentCount    int      // number of segments in manifest
	Pages           int      // pages recorded across all segments
	MissingSegments int      // number of segments that don't exist
	SizeMismatches  int      // number of segments with wrong size
	Errors          []string // detailed error messages
}

// Validate checks that every segment in the manifest exists with the
// recorded size. It reads object attributes only, not the data.
//
// Missing segments or size mismatches are not returned as errors; they are
// reported in the ValidationResult with Valid=false. An error means storage
// could not be checked at all.
func (s *Store) Validate(ctx context.Context) (*ValidationResult, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, ErrDestroyed
	}

	segs := s.Segments()
	result := &ValidationResult{
		Valid:        true,
		SegmentCount: len(segs),
		Errors:       make([]string, 0),
	}

	for _, seg := range segs {
		result.TotalSize += seg.Size
		result.Pages += seg.Pages

		attrs, err := s.bucket.Attributes(ctx, s.prefix+seg.Object)
		if err != nil {
			if isNotExist(err) {
				result.Valid = false
				result.MissingSegments++
				result.Errors = append(result.Errors,
					fmt.Sprintf("segment %d-%d missing: %s", seg.Start, seg.End, seg.Object))
				continue
			}
			return nil, fmt.Errorf("segstore: check segment %s: %w", seg.Object, err)
		}

		if attrs.Size != seg.Size {
			result.Valid = false
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("segment %d-%d size mismatch: expected %d, got %d",
					seg.Start, seg.End, seg.Size, attrs.Size))
		}
	}

	return result, nil
}
