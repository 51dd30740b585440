package model

import (
	"html/template"
	"path"
	"strings"
	"time"
)

// Uncategorized is the category of documents that sit directly in the
// documents root.
const Uncategorized = "Uncategorized"

// DateLayout is the ISO 8601 calendar date format used on cards and in
// sidecar files.
const DateLayout = "2006-01-02"

// Format identifies the kind of document.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatPPTX Format = "pptx"
)

// DefaultFormat is the format whose badge is suppressed on cards.
const DefaultFormat = FormatHTML

// FormatFromPath detects the format from a file extension, case-insensitively.
func FormatFromPath(p string) (Format, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".html":
		return FormatHTML, true
	case ".pdf":
		return FormatPDF, true
	case ".pptx":
		return FormatPPTX, true
	}
	return "", false
}

// Visibility values accepted in sidecar files.
const (
	VisibilityPublished = "published"
	VisibilityDraft     = "draft"
)

// DocumentRecord is the metadata extracted for one discovered document.
// SourcePath is slash-separated and relative to the documents root.
type DocumentRecord struct {
	SourcePath string
	Format     Format
	Title      string
	Date       time.Time
	Author     string
	Tags       []string
	Category   string
	// Summary is plain text from the document's description meta tag.
	Summary string
	// Description is rendered from a sidecar body and wins over Summary.
	Description template.HTML
	Visibility  string
}

// DateString renders the record date as YYYY-MM-DD.
func (d *DocumentRecord) DateString() string {
	return d.Date.Format(DateLayout)
}

// ID is the flattened stem shared by the thumbnail and the sidecar file.
func (d *DocumentRecord) ID() string {
	return DocumentID(d.SourcePath)
}

// ThumbnailName is the file name of the record's thumbnail.
func (d *DocumentRecord) ThumbnailName() string {
	return Flatten(d.SourcePath)
}

// Draft reports whether the record is excluded from the catalog.
func (d *DocumentRecord) Draft() bool {
	return d.Visibility == VisibilityDraft
}

// CategoryFromPath returns the first segment of a nested relative path, or
// Uncategorized for a root-level file.
func CategoryFromPath(rel string) string {
	rel = strings.TrimPrefix(path.Clean(rel), "/")
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return Uncategorized
}

// Catalog is the grouped view of a build's documents.
type Catalog struct {
	Groups     []Group
	byCategory map[string]int
}

// Group is one category section, documents newest first.
type Group struct {
	Name      string
	Documents []*DocumentRecord
}

// NewCatalog wraps already ordered groups.
func NewCatalog(groups []Group) Catalog {
	idx := make(map[string]int, len(groups))
	for i, g := range groups {
		idx[g.Name] = i
	}
	return Catalog{Groups: groups, byCategory: idx}
}

// Category returns the documents of one category.
func (c Catalog) Category(name string) ([]*DocumentRecord, bool) {
	i, ok := c.byCategory[name]
	if !ok {
		return nil, false
	}
	return c.Groups[i].Documents, true
}

// Categories lists category names in display order.
func (c Catalog) Categories() []string {
	names := make([]string, len(c.Groups))
	for i, g := range c.Groups {
		names[i] = g.Name
	}
	return names
}

// Total is the number of documents across all categories.
func (c Catalog) Total() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Documents)
	}
	return n
}

// CategoryCount is the number of non-empty categories.
func (c Catalog) CategoryCount() int {
	return len(c.Groups)
}
