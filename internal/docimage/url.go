package docimage

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultBaseURL is the DocImage endpoint used when none is configured.
const DefaultBaseURL = "https://media.ctump.edu.vn/DocImage.axd"

// Fixed rendering parameters sent with every page request.
const (
	Zoom   = "100"
	Format = "png"
)

// ErrInvalidBaseURL is returned when the base endpoint cannot be used to
// build page URLs.
var ErrInvalidBaseURL = errors.New("docimage: invalid base URL")

// URLBuilder builds per-page fetch URLs from a parsed base endpoint.
// It is safe for concurrent use.
type URLBuilder struct {
	base  url.URL
	query url.Values
}

// NewURLBuilder parses base once. Query parameters already present on base
// are kept on every built URL unless overridden.
func NewURLBuilder(base string) (*URLBuilder, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no scheme or host", ErrInvalidBaseURL, base)
	}

	b := &URLBuilder{base: *u, query: u.Query()}
	b.base.RawQuery = ""
	b.base.Fragment = ""
	return b, nil
}

// Build returns the URL for page of the document identified by token.
// The output is deterministic: query keys are emitted in sorted order.
func (b *URLBuilder) Build(page int, token string) string {
	q := make(url.Values, len(b.query)+4)
	for k, v := range b.query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("token", token)
	q.Set("zoom", Zoom)
	q.Set("format", Format)

	u := b.base
	u.RawQuery = q.Encode()
	return u.String()
}

// BuildPageURL is a convenience wrapper around NewURLBuilder and Build.
func BuildPageURL(base string, page int, token string) (string, error) {
	b, err := NewURLBuilder(base)
	if err != nil {
		return "", err
	}
	return b.Build(page, token), nil
}
