package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gocloud.dev/blob"
)

const partialSuffix = ".partial"

// Publisher moves a finished document at src to target. Implementations
// must not leave a partial document at target.
type Publisher interface {
	Publish(ctx context.Context, src, target string) error
}

// FilePublisher publishes to the local filesystem. The document is copied
// next to target first and renamed over it once complete.
type FilePublisher struct {
	Logger *zap.Logger
}

func (p *FilePublisher) Publish(ctx context.Context, src, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	partial := target + partialSuffix
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("sync: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return err
	}

	if _, err := os.Stat(target); err == nil {
		p.logger().Info("overwriting existing file", zap.String("path", target))
	} else if !errors.Is(err, fs.ErrNotExist) {
		os.Remove(partial)
		return err
	}

	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (p *FilePublisher) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// BucketPublisher publishes to object storage. target is used as the
// object key.
type BucketPublisher struct {
	Bucket *blob.Bucket
}

func (p *BucketPublisher) Publish(ctx context.Context, src, target string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := p.Bucket.NewWriter(wctx, target, &blob.WriterOptions{ContentType: "application/pdf"})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", target, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		w.Close()
		return fmt.Errorf("upload %s: %w", target, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", target, err)
	}
	return nil
}
