package model

import "time"

// RenderContext is everything the landing page is rendered from.
type RenderContext struct {
	Catalog Catalog
	// Records is the flat list backing the client-side lookup table.
	Records      []*DocumentRecord
	SiteTitle    string
	AccessCodes  []string
	AccessWindow time.Duration
	ThumbWidth   int
	ThumbHeight  int
	// Now is shown as the "last updated" date and is the only input that
	// varies between otherwise identical builds.
	Now time.Time
}
