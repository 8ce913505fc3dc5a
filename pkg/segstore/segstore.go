package segstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// ErrChecksumMismatch is returned when a segment read back does not match
// the checksum recorded when it was written.
var ErrChecksumMismatch = errors.New("segstore: checksum mismatch")

// ErrDestroyed is returned by operations on a destroyed store.
var ErrDestroyed = errors.New("segstore: store destroyed")

const (
	// ManifestObject is the key of the manifest, relative to the prefix.
	ManifestObject = "manifest.json"

	// DirPrefix starts the name of every directory made by CreateTemp.
	DirPrefix = "pagepress-job-"

	contentType = "application/pdf"
)

var objectNameRe = regexp.MustCompile(`^segment_(\d+)_(\d+)\.pdf$`)

// ObjectName returns the object name for the segment covering pages
// [start, end].
func ObjectName(start, end int) string {
	return fmt.Sprintf("segment_%d_%d.pdf", start, end)
}

// ParseObjectName reports whether name follows the ObjectName convention
// and returns its page range.
func ParseObjectName(name string) (start, end int, ok bool) {
	m := objectNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(m[1])
	end, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// Manifest lists the segments of one job, in the order they were written.
type Manifest struct {
	JobID     string        `json:"job_id"`
	Segments  []SegmentInfo `json:"segments"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SegmentInfo describes one persisted segment.
type SegmentInfo struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Object   string `json:"object"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Pages    int    `json:"pages"`
}

// Store keeps the segment artifacts of one job.
type Store struct {
	bucket     *blob.Bucket
	prefix     string
	dir        string
	ownsBucket bool

	mu        sync.Mutex
	manifest  Manifest
	destroyed bool
}

// Create starts an empty store under prefix in bucket. The bucket stays
// owned by the caller.
func Create(ctx context.Context, bucket *blob.Bucket, prefix, jobID string) (*Store, error) {
	now := time.Now().UTC()
	s := &Store{
		bucket: bucket,
		prefix: prefix,
		manifest: Manifest{
			JobID:     jobID,
			Segments:  []SegmentInfo{},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := s.saveManifest(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateTemp starts a store in a new directory root/pagepress-job-<jobID>
// on the local filesystem. Destroy removes the directory.
func CreateTemp(ctx context.Context, root, jobID string) (*Store, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, DirPrefix+jobID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("segstore: create dir: %w", err)
	}

	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("segstore: open bucket: %w", err)
	}

	s, err := Create(ctx, bucket, "", jobID)
	if err != nil {
		bucket.Close()
		os.RemoveAll(dir)
		return nil, err
	}
	s.dir = dir
	s.ownsBucket = true
	return s, nil
}

// Load opens an existing store from its manifest.
func Load(ctx context.Context, bucket *blob.Bucket, prefix string) (*Store, error) {
	data, err := bucket.ReadAll(ctx, prefix+ManifestObject)
	if err != nil {
		return nil, fmt.Errorf("segstore: read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("segstore: unmarshal manifest: %w", err)
	}

	return &Store{bucket: bucket, prefix: prefix, manifest: m}, nil
}

// Dir returns the local directory backing the store, or "" when the store
// lives in a caller-supplied bucket.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes the segment for pages [start, end] by calling write with a
// writer into storage. pages is the number of pages actually present. On
// any error the object is not committed and the manifest is unchanged.
func (s *Store) Put(ctx context.Context, start, end, pages int, write func(w io.Writer) error) (SegmentInfo, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return SegmentInfo{}, ErrDestroyed
	}

	object := ObjectName(start, end)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, s.prefix+object, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return SegmentInfo{}, fmt.Errorf("segstore: create writer for %s: %w", object, err)
	}

	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(w, h)}
	if err := write(cw); err != nil {
		// Cancelling before Close aborts the write.
		cancel()
		w.Close()
		return SegmentInfo{}, fmt.Errorf("segstore: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return SegmentInfo{}, fmt.Errorf("segstore: commit %s: %w", object, err)
	}

	info := SegmentInfo{
		Start:    start,
		End:      end,
		Object:   object,
		Size:     cw.n,
		Checksum: hex.EncodeToString(h.Sum(nil)),
		Pages:    pages,
	}

	s.mu.Lock()
	s.manifest.Segments = slices.DeleteFunc(s.manifest.Segments, func(si SegmentInfo) bool {
		return si.Object == object
	})
	s.manifest.Segments = append(s.manifest.Segments, info)
	s.manifest.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.saveManifest(ctx); err != nil {
		return SegmentInfo{}, err
	}
	return info, nil
}

// Segments returns the persisted segments in ascending page order.
func (s *Store) Segments() []SegmentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	segs := slices.Clone(s.manifest.Segments)
	slices.SortFunc(segs, func(a, b SegmentInfo) int { return a.Start - b.Start })
	return segs
}

// Manifest returns a copy of the current manifest.
func (s *Store) Manifest() Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.manifest
	m.Segments = slices.Clone(m.Segments)
	return m
}

// Open returns a reader for a segment. The checksum is verified when the
// reader reaches EOF; a mismatch is reported as ErrChecksumMismatch from
// Read.
func (s *Store) Open(ctx context.Context, info SegmentInfo) (io.ReadCloser, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, ErrDestroyed
	}

	r, err := s.bucket.NewReader(ctx, s.prefix+info.Object, nil)
	if err != nil {
		return nil, fmt.Errorf("segstore: open %s: %w", info.Object, err)
	}
	if info.Checksum == "" {
		return r, nil
	}
	return &checksumReader{reader: r, hash: sha256.New(), expected: info.Checksum, object: info.Object}, nil
}

// ReadAll reads a whole segment, verifying its checksum.
func (s *Store) ReadAll(ctx context.Context, info SegmentInfo) ([]byte, error) {
	r, err := s.Open(ctx, info)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Verify reads a segment to the end and checks its checksum without
// keeping the data.
func (s *Store) Verify(ctx context.Context, info SegmentInfo) error {
	r, err := s.Open(ctx, info)
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	return nil
}

// LocalPath returns the file holding a segment. It only reports ok for
// stores made by CreateTemp.
func (s *Store) LocalPath(info SegmentInfo) (string, bool) {
	if s.dir == "" {
		return "", false
	}
	return filepath.Join(s.dir, filepath.FromSlash(s.prefix+info.Object)), true
}

// Destroy deletes every segment and the manifest and, for a store made by
// CreateTemp, its directory. It is safe to call more than once.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	segs := slices.Clone(s.manifest.Segments)
	s.mu.Unlock()

	var errs []error
	for _, seg := range segs {
		if err := s.bucket.Delete(ctx, s.prefix+seg.Object); err != nil && !isNotExist(err) {
			errs = append(errs, fmt.Errorf("segstore: delete %s: %w", seg.Object, err))
		}
	}
	if err := s.bucket.Delete(ctx, s.prefix+ManifestObject); err != nil && !isNotExist(err) {
		errs = append(errs, fmt.Errorf("segstore: delete manifest: %w", err))
	}

	if s.ownsBucket {
		if err := s.bucket.Close(); err != nil {
			errs = append(errs, fmt.Errorf("segstore: close bucket: %w", err))
		}
	}
	if s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil {
			errs = append(errs, fmt.Errorf("segstore: remove dir: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) saveManifest(ctx context.Context) error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("segstore: marshal manifest: %w", err)
	}
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := s.bucket.WriteAll(ctx, s.prefix+ManifestObject, data, opts); err != nil {
		return fmt.Errorf("segstore: write manifest: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// checksumReader hashes data as it is read and checks it at EOF.
type checksumReader struct {
	reader   io.ReadCloser
	hash     hash.Hash
	expected string
	object   string
}

func (c *checksumReader) Read(p []byte) (n int, err error) {
	n, err = c.reader.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
	}
	if err == io.EOF {
		if actual := hex.EncodeToString(c.hash.Sum(nil)); actual != c.expected {
			return n, fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, c.object, c.expected, actual)
		}
	}
	return n, err
}

func (c *checksumReader) Close() error {
	return c.reader.Close()
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
