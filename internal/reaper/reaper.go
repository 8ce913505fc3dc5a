package reaper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob/fileblob"

	"github.com/ligustah/pagepress/pkg/segstore"
)

// fileblob keeps object attributes in a sidecar next to each object.
const attrsSuffix = ".attrs"

// DefaultLiveAge is used when Options.LiveAge is zero.
const DefaultLiveAge = 30 * time.Minute

// Options configures a Reaper.
type Options struct {
	// Root is the directory to sweep. Empty means the OS temp dir.
	Root string

	// MinAge protects files modified more recently than this.
	MinAge time.Duration

	// LiveAge protects whole job directories whose manifest was updated
	// more recently than this, regardless of MinAge. Zero means
	// DefaultLiveAge; negative disables the check.
	LiveAge time.Duration

	Logger *zap.Logger
}

// Report lists what a sweep did. Errors never stop a sweep.
type Report struct {
	Removed []string
	Live    []LiveJob
	Errors  []error
}

// LiveJob is a job directory left alone because its job is still running.
type LiveJob struct {
	Dir      string
	Manifest segstore.Manifest
}

// Reaper removes leftover segment artifacts.
type Reaper struct {
	root    string
	minAge  time.Duration
	liveAge time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Reaper for opts.
func New(opts Options) *Reaper {
	root := opts.Root
	if root == "" {
		root = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	liveAge := opts.LiveAge
	if liveAge == 0 {
		liveAge = DefaultLiveAge
	}
	return &Reaper{
		root:    root,
		minAge:  opts.MinAge,
		liveAge: liveAge,
		logger:  logger.Named("reaper"),
		now:     time.Now,
	}
}

// Root returns the directory swept by Reap.
func (r *Reaper) Root() string {
	return r.root
}

// Reap sweeps Root and the directories directly below it. It deletes
// segment files and their sidecars, and job directories left empty. In job
// directories the manifest goes too. Job directories whose manifest was
// updated within LiveAge are skipped entirely and listed in Report.Live.
// Other directories it cannot read are skipped unless they are job
// directories.
func (r *Reaper) Reap(ctx context.Context) Report {
	var rep Report

	entries, err := os.ReadDir(r.root)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Errorf("read %s: %w", r.root, err))
		r.logReport(rep)
		return rep
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(r.root, e.Name())
		if e.IsDir() {
			r.sweepDir(ctx, path, strings.HasPrefix(e.Name(), segstore.DirPrefix), &rep)
			continue
		}
		if isSegmentFile(e.Name()) {
			r.removeIfOld(path, e, &rep)
		}
	}

	r.logReport(rep)
	return rep
}

func (r *Reaper) sweepDir(ctx context.Context, dir string, jobDir bool, rep *Report) {
	if jobDir && r.liveAge > 0 {
		if m, err := readManifest(ctx, dir); err == nil && r.now().Sub(m.UpdatedAt) < r.liveAge {
			r.logger.Debug("skipping live job", zap.String("dir", dir), zap.String("job", m.JobID))
			rep.Live = append(rep.Live, LiveJob{Dir: dir, Manifest: m})
			return
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if jobDir {
			rep.Errors = append(rep.Errors, fmt.Errorf("read %s: %w", dir, err))
		}
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if isSegmentFile(name) || (jobDir && strings.TrimSuffix(name, attrsSuffix) == segstore.ManifestObject) {
			r.removeIfOld(filepath.Join(dir, name), e, rep)
		}
	}

	if !jobDir {
		return
	}
	left, err := os.ReadDir(dir)
	if err != nil || len(left) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rep.Errors = append(rep.Errors, err)
		return
	}
	rep.Removed = append(rep.Removed, dir)
}

func (r *Reaper) removeIfOld(path string, e fs.DirEntry, rep *Report) {
	info, err := e.Info()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rep.Errors = append(rep.Errors, err)
		}
		return
	}
	if r.now().Sub(info.ModTime()) < r.minAge {
		return
	}
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rep.Errors = append(rep.Errors, err)
		}
		return
	}
	rep.Removed = append(rep.Removed, path)
}

func (r *Reaper) logReport(rep Report) {
	for _, err := range rep.Errors {
		r.logger.Debug("cleanup error", zap.Error(err))
	}
	if len(rep.Removed) > 0 || len(rep.Errors) > 0 {
		r.logger.Info("swept temporary files",
			zap.String("root", r.root),
			zap.Int("removed", len(rep.Removed)),
			zap.Int("errors", len(rep.Errors)))
	}
}

// readManifest loads the segstore manifest of a job directory.
func readManifest(ctx context.Context, dir string) (segstore.Manifest, error) {
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return segstore.Manifest{}, err
	}
	defer bucket.Close()

	store, err := segstore.Load(ctx, bucket, "")
	if err != nil {
		return segstore.Manifest{}, err
	}
	return store.Manifest(), nil
}

// isSegmentFile matches segment objects and their fileblob sidecars.
func isSegmentFile(name string) bool {
	_, _, ok := segstore.ParseObjectName(strings.TrimSuffix(name, attrsSuffix))
	return ok
}
