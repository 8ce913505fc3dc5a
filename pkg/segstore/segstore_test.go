package segstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func openMem(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "segment_201_400.pdf", ObjectName(201, 400))

	start, end, ok := ParseObjectName("segment_201_400.pdf")
	assert.True(t, ok)
	assert.Equal(t, 201, start)
	assert.Equal(t, 400, end)

	for _, name := range []string{"segment_5_4.pdf", "segment_1_2.pdf.attrs", "segment_a_2.pdf", "manifest.json", "xsegment_1_2.pdf"} {
		_, _, ok := ParseObjectName(name)
		assert.False(t, ok, name)
	}
}

func TestPutAndRead(t *testing.T) {
	ctx := context.Background()
	bucket := openMem(t)

	s, err := Create(ctx, bucket, "jobs/abc/", "abc")
	require.NoError(t, err)

	info, err := s.Put(ctx, 201, 400, 198, writeString("second"))
	require.NoError(t, err)
	assert.Equal(t, "segment_201_400.pdf", info.Object)
	assert.Equal(t, int64(6), info.Size)
	assert.Equal(t, 198, info.Pages)
	assert.Len(t, info.Checksum, 64)

	_, err = s.Put(ctx, 1, 200, 200, writeString("first"))
	require.NoError(t, err)

	segs := s.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, 1, segs[0].Start)
	assert.Equal(t, 201, segs[1].Start)

	data, err := s.ReadAll(ctx, segs[0])
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	// The manifest is persisted after every Put.
	loaded, err := Load(ctx, bucket, "jobs/abc/")
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.Manifest().JobID)
	assert.Equal(t, segs, loaded.Segments())
}

func TestPutReplacesSameRange(t *testing.T) {
	ctx := context.Background()
	s, err := Create(ctx, openMem(t), "", "j")
	require.NoError(t, err)

	_, err = s.Put(ctx, 1, 20, 20, writeString("old"))
	require.NoError(t, err)
	_, err = s.Put(ctx, 1, 20, 19, writeString("newer"))
	require.NoError(t, err)

	segs := s.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, 19, segs[0].Pages)
	assert.Equal(t, int64(5), segs[0].Size)
}

func TestPutWriteErrorCommitsNothing(t *testing.T) {
	ctx := context.Background()
	bucket := openMem(t)
	s, err := Create(ctx, bucket, "", "j")
	require.NoError(t, err)

	_, err = s.Put(ctx, 1, 20, 20, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("encoder exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder exploded")

	exists, err := bucket.Exists(ctx, "segment_1_20.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, s.Segments())
}

func TestChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	bucket := openMem(t)
	s, err := Create(ctx, bucket, "", "j")
	require.NoError(t, err)

	info, err := s.Put(ctx, 1, 20, 20, writeString("original"))
	require.NoError(t, err)

	require.NoError(t, bucket.WriteAll(ctx, info.Object, []byte("tampered"), nil))

	_, err = s.ReadAll(ctx, info)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.ErrorIs(t, s.Verify(ctx, info), ErrChecksumMismatch)
}

func TestLocalPathOnlyForTempStores(t *testing.T) {
	ctx := context.Background()
	s, err := Create(ctx, openMem(t), "", "j")
	require.NoError(t, err)

	_, ok := s.LocalPath(SegmentInfo{Object: "segment_1_20.pdf"})
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	bucket := openMem(t)
	s, err := Create(ctx, bucket, "", "j")
	require.NoError(t, err)

	a, err := s.Put(ctx, 1, 20, 20, writeString("aaaa"))
	require.NoError(t, err)
	b, err := s.Put(ctx, 21, 40, 18, writeString("bbbb"))
	require.NoError(t, err)
	_, err = s.Put(ctx, 41, 45, 5, writeString("cccc"))
	require.NoError(t, err)

	result, err := s.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.SegmentCount)
	assert.Equal(t, 43, result.Pages)
	assert.Equal(t, int64(12), result.TotalSize)

	require.NoError(t, bucket.Delete(ctx, a.Object))
	require.NoError(t, bucket.WriteAll(ctx, b.Object, []byte("bb"), nil))

	result, err = s.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.MissingSegments)
	assert.Equal(t, 1, result.SizeMismatches)
	assert.Len(t, result.Errors, 2)
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	bucket := openMem(t)
	s, err := Create(ctx, bucket, "p/", "j")
	require.NoError(t, err)

	_, err = s.Put(ctx, 1, 20, 20, writeString("x"))
	require.NoError(t, err)

	require.NoError(t, s.Destroy(ctx))
	require.NoError(t, s.Destroy(ctx), "second destroy is a no-op")

	iter := bucket.List(&blob.ListOptions{Prefix: "p/"})
	_, err = iter.Next(ctx)
	assert.ErrorIs(t, err, io.EOF, "nothing left under the prefix")

	_, err = s.Put(ctx, 21, 40, 20, writeString("y"))
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = s.Validate(ctx)
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = s.Open(ctx, SegmentInfo{Object: "segment_1_20.pdf"})
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestCreateTemp(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := CreateTemp(ctx, root, "1234")
	require.NoError(t, err)

	dir := filepath.Join(root, "pagepress-job-1234")
	assert.Equal(t, dir, s.Dir())

	info, err := s.Put(ctx, 1, 200, 200, writeString(strings.Repeat("z", 1000)))
	require.NoError(t, err)

	path, ok := s.LocalPath(info)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, info.Object), path)
	_, err = os.Stat(path)
	require.NoError(t, err, "segment is a plain file in the job dir")
	require.NoError(t, s.Verify(ctx, info))

	data, err := s.ReadAll(ctx, info)
	require.NoError(t, err)
	assert.Len(t, data, 1000)

	require.NoError(t, s.Destroy(ctx))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
