package docimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrTokenNotFound is returned when neither the viewer page nor its scripts
// contain a document token.
var ErrTokenNotFound = errors.New("docimage: token not found")

// MaxScripts caps how many external scripts are searched for a token.
const MaxScripts = 20

var (
	tokenAssignRe = regexp.MustCompile(`token\s*=\s*['"]([0-9a-fA-F-]{36})['"]`)
	uuidRe        = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
)

// Getter fetches a resource and reports the URL it was finally served from
// (after redirects).
type Getter interface {
	Get(ctx context.Context, rawURL string) (body []byte, finalURL string, err error)
}

// DiscoverToken finds the document token referenced by a viewer page.
//
// The page itself is searched first for a `token = '...'` assignment, then for
// any bare UUID. Failing that, up to MaxScripts external scripts referenced by
// the page are fetched and searched in document order. Script fetch errors
// are skipped.
func DiscoverToken(ctx context.Context, g Getter, viewerURL string) (string, error) {
	body, finalURL, err := g.Get(ctx, viewerURL)
	if err != nil {
		return "", fmt.Errorf("docimage: fetch viewer page: %w", err)
	}

	if tok := FindToken(body); tok != "" {
		return tok, nil
	}

	base, err := url.Parse(finalURL)
	if err != nil {
		return "", fmt.Errorf("docimage: parse viewer url: %w", err)
	}

	for _, src := range ScriptSources(body, MaxScripts) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		ref, err := url.Parse(src)
		if err != nil {
			continue
		}
		script, _, err := g.Get(ctx, base.ResolveReference(ref).String())
		if err != nil {
			continue
		}
		if tok := FindToken(script); tok != "" {
			return tok, nil
		}
	}

	return "", ErrTokenNotFound
}

// FindToken searches text for a token assignment, falling back to the first
// UUID-shaped string. It returns "" when nothing matches.
func FindToken(text []byte) string {
	if m := tokenAssignRe.FindSubmatch(text); m != nil {
		return string(m[1])
	}
	if m := uuidRe.Find(text); m != nil {
		return string(m)
	}
	return ""
}

// ScriptSources returns the src attributes of <script> elements in page, in
// document order, at most limit of them.
func ScriptSources(page []byte, limit int) []string {
	var srcs []string
	z := html.NewTokenizer(bytes.NewReader(page))
	for len(srcs) < limit {
		switch z.Next() {
		case html.ErrorToken:
			return srcs
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !strings.EqualFold(string(name), "script") || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if strings.EqualFold(string(key), "src") && len(val) > 0 {
					srcs = append(srcs, string(val))
					break
				}
				if !more {
					break
				}
			}
		}
	}
	return srcs
}
