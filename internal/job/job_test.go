package job

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionScenario(t *testing.T) {
	segments := Partition(1, 450, 200)

	require.Len(t, segments, 3)
	assert.Equal(t, Segment{Index: 1, Start: 1, End: 200}, segments[0])
	assert.Equal(t, Segment{Index: 2, Start: 201, End: 400}, segments[1])
	assert.Equal(t, Segment{Index: 3, Start: 401, End: 450}, segments[2])
	assert.Equal(t, "segment_401_450.pdf", segments[2].Name())
}

func TestPartitionCoversRangeExactly(t *testing.T) {
	tests := []struct {
		start, end, size int
	}{
		{1, 1, 20},
		{1, 20, 20},
		{1, 21, 20},
		{5, 500, 200},
		{17, 913, 37},
		{100, 100, 1},
	}

	for _, tt := range tests {
		segments := Partition(tt.start, tt.end, tt.size)
		require.NotEmpty(t, segments)

		next := tt.start
		for i, seg := range segments {
			assert.Equal(t, i+1, seg.Index)
			assert.Equal(t, next, seg.Start, "segment %d must start where the previous ended", i)
			assert.LessOrEqual(t, seg.Pages(), tt.size)
			assert.GreaterOrEqual(t, seg.End, seg.Start)
			next = seg.End + 1
		}
		assert.Equal(t, tt.end+1, next, "range %d-%d size %d not fully covered", tt.start, tt.end, tt.size)
	}
}

func TestPartitionEmpty(t *testing.T) {
	assert.Nil(t, Partition(10, 9, 20))
	assert.Nil(t, Partition(1, 10, 0))
}

func TestPartitionNearMaxInt(t *testing.T) {
	segments := Partition(math.MaxInt-5, math.MaxInt, 200)
	require.Len(t, segments, 1)
	assert.Equal(t, Segment{Index: 1, Start: math.MaxInt - 5, End: math.MaxInt}, segments[0])

	segments = Partition(math.MaxInt-449, math.MaxInt, 200)
	require.Len(t, segments, 3)
	assert.Equal(t, math.MaxInt-449, segments[0].Start)
	assert.Equal(t, segments[0].End+1, segments[1].Start)
	assert.Equal(t, segments[1].End+1, segments[2].Start)
	assert.Equal(t, math.MaxInt, segments[2].End)
	assert.Equal(t, 50, segments[2].Pages())

	segments = Partition(1, 10, math.MaxInt)
	require.Len(t, segments, 1)
	assert.Equal(t, 10, segments[0].End)
}

func TestSpecValidate(t *testing.T) {
	valid := Spec{Token: "T", StartPage: 1, EndPage: 450, Output: "out.pdf"}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 450, valid.Pages())

	bad := valid
	bad.EndPage = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRange))

	bad = valid
	bad.StartPage = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRange)

	bad = valid
	bad.EndPage = math.MaxInt
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRange)

	bad = valid
	bad.StartPage, bad.EndPage = MaxPage, MaxPage
	assert.NoError(t, bad.Validate())
	bad.EndPage = MaxPage + 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRange)

	bad = valid
	bad.Token = "  "
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Output = ""
	assert.Error(t, bad.Validate())
}

func TestSpecWithID(t *testing.T) {
	s := Spec{Token: "T", StartPage: 1, EndPage: 2, Output: "x.pdf"}.WithID()
	assert.NotEmpty(t, s.ID)

	kept := s.WithID()
	assert.Equal(t, s.ID, kept.ID)
}
