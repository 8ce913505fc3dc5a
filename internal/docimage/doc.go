// Package docimage knows the shape of the remote DocImage service: how page
// URLs are built and how a document token is found on a viewer page.
//
// # Page URLs
//
//	b, err := docimage.NewURLBuilder("https://host/DocImage.axd?v=2")
//	u := b.Build(57, token)
//	// https://host/DocImage.axd?format=png&page=57&token=...&v=2&zoom=100
//
// # Token discovery
//
// [DiscoverToken] scrapes a viewer page (and, if needed, its scripts) for the
// token that identifies the document.
package docimage
