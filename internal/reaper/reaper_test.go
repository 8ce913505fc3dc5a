package reaper

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/pagepress/pkg/segstore"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mod := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestReapRemovesSegmentsAndEmptyJobDirs(t *testing.T) {
	root := t.TempDir()
	old := 2 * time.Hour

	stale := filepath.Join(root, "pagepress-job-stale")
	touch(t, filepath.Join(stale, "segment_1_200.pdf"), old)
	touch(t, filepath.Join(stale, "segment_1_200.pdf.attrs"), old)
	touch(t, filepath.Join(stale, "manifest.json"), old)
	touch(t, filepath.Join(stale, "manifest.json.attrs"), old)

	live := filepath.Join(root, "pagepress-job-live")
	touch(t, filepath.Join(live, "segment_1_20.pdf"), 0)
	touch(t, filepath.Join(live, "manifest.json"), 0)

	touch(t, filepath.Join(root, "segment_5_9.pdf"), old)
	touch(t, filepath.Join(root, "report.pdf"), old)
	touch(t, filepath.Join(root, "other", "segment_7_8.pdf"), old)
	touch(t, filepath.Join(root, "other", "manifest.json"), old)

	rep := New(Options{Root: root, MinAge: time.Hour}).Reap(context.Background())
	assert.Empty(t, rep.Errors)

	assert.False(t, exists(stale), "stale job dir should be gone")
	assert.False(t, exists(filepath.Join(root, "segment_5_9.pdf")))
	assert.False(t, exists(filepath.Join(root, "other", "segment_7_8.pdf")))

	assert.True(t, exists(filepath.Join(live, "segment_1_20.pdf")), "fresh segment kept")
	assert.True(t, exists(filepath.Join(live, "manifest.json")))
	assert.True(t, exists(filepath.Join(root, "report.pdf")))
	assert.True(t, exists(filepath.Join(root, "other", "manifest.json")), "manifest outside a job dir kept")

	// 4 files in the stale dir, the dir itself, and 2 loose segments.
	assert.Len(t, rep.Removed, 7)
	assert.Contains(t, rep.Removed, stale)
}

func TestReapZeroMinAgeRemovesEverything(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pagepress-job-x")
	touch(t, filepath.Join(dir, "segment_1_20.pdf"), 0)
	touch(t, filepath.Join(dir, "manifest.json"), 0)

	rep := New(Options{Root: root}).Reap(context.Background())
	assert.Empty(t, rep.Errors)
	assert.False(t, exists(dir))
}

func TestReapSkipsLiveJobs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := segstore.CreateTemp(ctx, root, "running")
	require.NoError(t, err)
	_, err = store.Put(ctx, 1, 20, 20, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader([]byte("%PDF")))
		return err
	})
	require.NoError(t, err)

	r := New(Options{Root: root})
	rep := r.Reap(ctx)
	assert.Empty(t, rep.Errors)
	assert.Empty(t, rep.Removed)
	require.Len(t, rep.Live, 1)
	assert.Equal(t, store.Dir(), rep.Live[0].Dir)
	assert.Equal(t, "running", rep.Live[0].Manifest.JobID)
	assert.Len(t, rep.Live[0].Manifest.Segments, 1)
	assert.True(t, exists(filepath.Join(store.Dir(), "segment_1_20.pdf")))

	// Once the manifest is older than LiveAge the job counts as abandoned.
	r.now = func() time.Time { return time.Now().Add(DefaultLiveAge + time.Minute) }
	rep = r.Reap(ctx)
	assert.Empty(t, rep.Errors)
	assert.Empty(t, rep.Live)
	assert.False(t, exists(store.Dir()))
}

func TestReapNegativeLiveAgeDisablesCheck(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := segstore.CreateTemp(ctx, root, "running")
	require.NoError(t, err)

	rep := New(Options{Root: root, LiveAge: -1}).Reap(ctx)
	assert.Empty(t, rep.Live)
	assert.False(t, exists(store.Dir()))
}

func TestReapKeepsJobDirWithForeignFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pagepress-job-x")
	touch(t, filepath.Join(dir, "segment_1_20.pdf"), time.Hour)
	touch(t, filepath.Join(dir, "notes.txt"), time.Hour)

	rep := New(Options{Root: root}).Reap(context.Background())
	assert.Empty(t, rep.Errors)
	assert.True(t, exists(filepath.Join(dir, "notes.txt")))
	assert.False(t, exists(filepath.Join(dir, "segment_1_20.pdf")))
}

func TestReapMissingRootReportsError(t *testing.T) {
	rep := New(Options{Root: filepath.Join(t.TempDir(), "nope")}).Reap(context.Background())
	assert.Empty(t, rep.Removed)
	assert.Len(t, rep.Errors, 1)
}

func TestReapCancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "segment_1_20.pdf"), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := New(Options{Root: root}).Reap(ctx)
	assert.Empty(t, rep.Removed)
	assert.True(t, exists(filepath.Join(root, "segment_1_20.pdf")))
}

func TestIsSegmentFile(t *testing.T) {
	tests := map[string]bool{
		"segment_1_200.pdf":       true,
		"segment_1_200.pdf.attrs": true,
		"segment_9_1.pdf":         false,
		"segment_a_b.pdf":         false,
		"segment_1_200.pdf.tmp":   false,
		"manifest.json":           false,
	}
	for name, want := range tests {
		assert.Equal(t, want, isSegmentFile(name), name)
	}
}

func TestNewDefaultsToTempDir(t *testing.T) {
	assert.Equal(t, os.TempDir(), New(Options{}).Root())
}
