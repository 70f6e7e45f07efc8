// Package provider groups the external metadata services: audiodb for
// free-text artist and album enrichment, musicbrainz for relational
// release data, and lastfm as a fallback when the others come up empty.
//
// The interfaces the catalog builder consumes are defined in
// internal/catalog, following the Go convention of defining interfaces
// where they are consumed. Each sub-package here is a concrete client.
package provider
