// Package metadata derives DocumentRecords from document files, their
// embedded directives and optional sidecar files.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// ErrUnreadable marks a document that is missing or cannot be read.
var ErrUnreadable = errors.New("document unreadable")

// Directive meta tag names recognised in markup documents.
const (
	DirectiveTitle  = "presentation-title"
	DirectiveDate   = "presentation-date"
	DirectiveAuthor = "presentation-author"
	DirectiveTags   = "presentation-tags"
)

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Extractor reads a document and merges its metadata sources: sidecar file,
// then embedded directives, then file heuristics.
type Extractor struct {
	FS fsys.FS
	// MetadataDir holds optional sidecar files; empty disables them.
	MetadataDir   string
	DefaultAuthor string
	// Now supplies the date used when a document has no date source at all.
	Now func() time.Time
}

// Extract builds the record for the document at absPath; relPath is its
// slash-separated path relative to the documents root.
func (e *Extractor) Extract(absPath, relPath string) (model.DocumentRecord, error) {
	relPath = strings.TrimPrefix(path.Clean(filepath.ToSlash(relPath)), "/")
	format, ok := model.FormatFromPath(relPath)
	if !ok {
		return model.DocumentRecord{}, fmt.Errorf("%s: unsupported document type", relPath)
	}

	rec := model.DocumentRecord{
		SourcePath: relPath,
		Format:     format,
		Title:      TitleFromFilename(relPath),
		Author:     e.DefaultAuthor,
		Tags:       []string{},
		Category:   model.CategoryFromPath(relPath),
		Visibility: model.VisibilityPublished,
	}

	info, err := e.FS.Stat(absPath)
	if err != nil {
		return model.DocumentRecord{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, relPath, err)
	}
	if info.IsDir() {
		return model.DocumentRecord{}, fmt.Errorf("%w: %s is a directory", ErrUnreadable, relPath)
	}
	rec.Date = calendarDate(info.ModTime())
	if info.ModTime().IsZero() {
		rec.Date = calendarDate(e.now())
	}

	if format == model.FormatHTML {
		raw, err := e.FS.ReadFile(absPath)
		if err != nil {
			return model.DocumentRecord{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, relPath, err)
		}
		if err := applyDirectives(&rec, raw); err != nil {
			return model.DocumentRecord{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, relPath, err)
		}
	}

	if e.MetadataDir != "" {
		sc, err := e.readSidecar(rec.ID())
		if err != nil {
			return model.DocumentRecord{}, err
		}
		if sc != nil {
			if err := sc.apply(&rec); err != nil {
				return model.DocumentRecord{}, fmt.Errorf("sidecar for %s: %w", relPath, err)
			}
		}
	}

	return rec, nil
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func applyDirectives(rec *model.DocumentRecord, raw []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	meta := func(name string) string {
		return strings.TrimSpace(doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().AttrOr("content", ""))
	}

	if title := meta(DirectiveTitle); title != "" {
		rec.Title = title
	} else if title := normalizeSpace(doc.Find("title").First().Text()); title != "" {
		rec.Title = title
	}

	if date, ok := ParseDate(meta(DirectiveDate)); ok {
		rec.Date = date
	}

	if author := meta(DirectiveAuthor); author != "" {
		rec.Author = author
	} else if author := meta("author"); author != "" {
		rec.Author = author
	}

	if tags := meta(DirectiveTags); tags != "" {
		rec.Tags = NormalizeTags(strings.Split(tags, ","))
	}

	rec.Summary = normalizeSpace(meta("description"))
	return nil
}

// TitleFromFilename turns "market-analysis_v2.html" into "Market Analysis V2".
func TitleFromFilename(rel string) string {
	base := path.Base(rel)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return cases.Title(language.English, cases.NoLower).String(normalizeSpace(base))
}

// ParseDate accepts a calendar date or a timestamp and returns its calendar
// date in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return calendarDate(t), true
		}
	}
	return time.Time{}, false
}

// NormalizeTags trims tags and drops empties and duplicates, keeping the
// first occurrence.
func NormalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

func calendarDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
