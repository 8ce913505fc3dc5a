package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Common errors.
var (
	ErrEmptyImage = errors.New("pdf: empty image")
	ErrNoDocument = errors.New("pdf: nothing to merge")
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Encoder turns one raster image into a one-page PDF whose page matches the
// image dimensions.
type Encoder struct{}

// Encode returns the PDF bytes for image. PNG, JPEG, TIFF and WebP are
// accepted.
func (Encoder) Encode(image []byte) ([]byte, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	imp := pdfcpu.DefaultImportConfig()

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(image)}, imp, newConfig()); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Merger concatenates PDFs page by page.
type Merger struct{}

// Merge writes every page of every doc, in order, to w.
func (Merger) Merge(ctx context.Context, docs []io.ReadSeeker, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch len(docs) {
	case 0:
		return ErrNoDocument
	case 1:
		if _, err := docs[0].Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		if _, err := io.Copy(w, docs[0]); err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		return nil
	}

	if err := api.MergeRaw(docs, w, false, newConfig()); err != nil {
		return fmt.Errorf("merge %d documents: %w", len(docs), err)
	}
	return nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(rs io.ReadSeeker) (int, error) {
	n, err := api.PageCount(rs, newConfig())
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}
