package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func writeSrc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merged.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilePublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := &FilePublisher{Logger: zap.New(core)}
	ctx := context.Background()

	target := filepath.Join(t.TempDir(), "nested", "dir", "book.pdf")
	require.NoError(t, p.Publish(ctx, writeSrc(t, "first"), target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.Zero(t, logs.Len())

	require.NoError(t, p.Publish(ctx, writeSrc(t, "second"), target))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, 1, logs.FilterMessage("overwriting existing file").Len())

	_, err = os.Stat(target + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestFilePublisherMissingSource(t *testing.T) {
	target := filepath.Join(t.TempDir(), "book.pdf")
	err := (&FilePublisher{}).Publish(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), target)
	require.Error(t, err)

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestFilePublisherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := filepath.Join(t.TempDir(), "book.pdf")
	require.ErrorIs(t, (&FilePublisher{}).Publish(ctx, writeSrc(t, "x"), target), context.Canceled)
}

func TestBucketPublisher(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	p := &BucketPublisher{Bucket: bucket}
	require.NoError(t, p.Publish(ctx, writeSrc(t, "%PDF-1.7"), "books/one.pdf"))

	data, err := bucket.ReadAll(ctx, "books/one.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	attrs, err := bucket.Attributes(ctx, "books/one.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", attrs.ContentType)
}

func TestBucketPublisherMissingSource(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	p := &BucketPublisher{Bucket: bucket}
	require.Error(t, p.Publish(ctx, filepath.Join(t.TempDir(), "nope.pdf"), "books/one.pdf"))

	exists, err := bucket.Exists(ctx, "books/one.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}
