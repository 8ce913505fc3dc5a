// Package testutils provides shared test infrastructure: a fake DocImage
// endpoint serving generated PNGs, and, under the integration build tag, a
// minio container reachable through gocloud's s3blob.
package testutils
