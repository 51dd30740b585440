package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

var fixedNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

func newExtractor(t *testing.T) (*Extractor, string) {
	t.Helper()
	dir := t.TempDir()
	return &Extractor{
		FS:            fsys.OS{},
		MetadataDir:   filepath.Join(dir, "metadata"),
		DefaultAuthor: "CIQ",
		Now:           func() time.Time { return fixedNow },
	}, filepath.Join(dir, "presentations")
}

func writeDoc(t *testing.T, root, rel, content string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func TestExtract_HTMLDirectives(t *testing.T) {
	e, root := newExtractor(t)
	html := `<!DOCTYPE html><html><head>
<title>Ignored Title</title>
<meta name="presentation-title" content="One">
<meta name="presentation-date" content="2024-01-01">
<meta name="presentation-author" content="Brian">
<meta name="presentation-tags" content=" ai, market ,, ai, go ">
<meta name="description" content="  Quarterly   update ">
</head><body></body></html>`
	p := writeDoc(t, root, "a/one.html", html, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC))

	rec, err := e.Extract(p, "a/one.html")
	require.NoError(t, err)

	assert.Equal(t, "a/one.html", rec.SourcePath)
	assert.Equal(t, model.FormatHTML, rec.Format)
	assert.Equal(t, "One", rec.Title)
	assert.Equal(t, "2024-01-01", rec.DateString())
	assert.Equal(t, "Brian", rec.Author)
	assert.Equal(t, []string{"ai", "market", "go"}, rec.Tags)
	assert.Equal(t, "a", rec.Category)
	assert.Equal(t, "Quarterly update", rec.Summary)
	assert.Equal(t, model.VisibilityPublished, rec.Visibility)
}

func TestExtract_HTMLFallbacks(t *testing.T) {
	e, root := newExtractor(t)
	mtime := time.Date(2025, 7, 8, 23, 30, 0, 0, time.UTC)

	t.Run("title tag", func(t *testing.T) {
		p := writeDoc(t, root, "deck.html", `<html><head><title>
  From   Title Tag </title><meta name="author" content="Meta Author"></head></html>`, mtime)
		rec, err := e.Extract(p, "deck.html")
		require.NoError(t, err)
		assert.Equal(t, "From Title Tag", rec.Title)
		assert.Equal(t, "Meta Author", rec.Author)
		assert.Equal(t, "2025-07-08", rec.DateString(), "file timestamp when no date directive")
		assert.Equal(t, model.Uncategorized, rec.Category)
		assert.Empty(t, rec.Tags)
	})

	t.Run("filename", func(t *testing.T) {
		p := writeDoc(t, root, "sales/market-analysis_q3.html", `<p>no head</p>`, mtime)
		rec, err := e.Extract(p, "sales/market-analysis_q3.html")
		require.NoError(t, err)
		assert.Equal(t, "Market Analysis Q3", rec.Title)
		assert.Equal(t, "CIQ", rec.Author)
		assert.Equal(t, "sales", rec.Category)
	})

	t.Run("bad date directive", func(t *testing.T) {
		p := writeDoc(t, root, "x.html", `<meta name="presentation-date" content="next tuesday">`, mtime)
		rec, err := e.Extract(p, "x.html")
		require.NoError(t, err)
		assert.Equal(t, "2025-07-08", rec.DateString())
	})
}

func TestExtract_NonMarkup(t *testing.T) {
	e, root := newExtractor(t)
	p := writeDoc(t, root, "b/two.pdf", "%PDF-1.4 <meta name=\"presentation-title\" content=\"Nope\">", time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC))

	rec, err := e.Extract(p, "b/two.pdf")
	require.NoError(t, err)

	assert.Equal(t, model.FormatPDF, rec.Format)
	assert.Equal(t, "Two", rec.Title)
	assert.Equal(t, "2023-02-01", rec.DateString())
	assert.Equal(t, "CIQ", rec.Author)
	assert.Empty(t, rec.Tags)
	assert.Equal(t, "b", rec.Category)
}

func TestExtract_Deterministic(t *testing.T) {
	e, root := newExtractor(t)
	p := writeDoc(t, root, "a/one.html", `<title>One</title>`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := e.Extract(p, "a/one.html")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := e.Extract(p, "a/one.html")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtract_MissingFile(t *testing.T) {
	e, root := newExtractor(t)
	_, err := e.Extract(filepath.Join(root, "gone.html"), "gone.html")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestExtract_Sidecar(t *testing.T) {
	e, root := newExtractor(t)
	p := writeDoc(t, root, "a/one.html", `<meta name="presentation-title" content="One">`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	sidecar := `---
title: Curated Title
date: 2024-06-30
tags: [roadmap, " ai "]
visibility: draft
---

Shown on the **card**.
`
	require.NoError(t, os.MkdirAll(e.MetadataDir, 0o755))
	require.NoError(t, os.WriteFile(e.SidecarPath(model.DocumentID("a/one.html")), []byte(sidecar), 0o644))

	rec, err := e.Extract(p, "a/one.html")
	require.NoError(t, err)

	assert.Equal(t, "Curated Title", rec.Title)
	assert.Equal(t, "2024-06-30", rec.DateString())
	assert.Equal(t, "CIQ", rec.Author, "unset sidecar fields keep extracted values")
	assert.Equal(t, []string{"roadmap", "ai"}, rec.Tags)
	assert.True(t, rec.Draft())
	assert.Contains(t, string(rec.Description), "<strong>card</strong>")
}

func TestExtract_SidecarInvalid(t *testing.T) {
	e, root := newExtractor(t)
	p := writeDoc(t, root, "one.html", `<title>One</title>`, fixedNow)
	require.NoError(t, os.MkdirAll(e.MetadataDir, 0o755))
	require.NoError(t, os.WriteFile(e.SidecarPath(model.DocumentID("one.html")), []byte("---\ndate: someday\n---\n"), 0o644))

	_, err := e.Extract(p, "one.html")
	require.Error(t, err)
}

func TestWriteSidecar_PreservesExisting(t *testing.T) {
	e, root := newExtractor(t)
	p := writeDoc(t, root, "a/one.html", `<meta name="presentation-title" content="One"><meta name="presentation-tags" content="x,y"><meta name="description" content="About one">`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	rec, err := e.Extract(p, "a/one.html")
	require.NoError(t, err)

	written, err := e.WriteSidecar(rec)
	require.NoError(t, err)
	assert.True(t, written)

	again, err := e.Extract(p, "a/one.html")
	require.NoError(t, err)
	assert.Equal(t, rec.Title, again.Title)
	assert.Equal(t, rec.Tags, again.Tags)
	assert.Equal(t, rec.DateString(), again.DateString())
	assert.Contains(t, string(again.Description), "About one")

	path := e.SidecarPath(rec.ID())
	require.NoError(t, os.WriteFile(path, []byte("---\ntitle: Edited\n---\n"), 0o644))

	written, err = e.WriteSidecar(rec)
	require.NoError(t, err)
	assert.False(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: Edited\n---\n", string(data))
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "Market Analysis", TitleFromFilename("market-analysis.html"))
	assert.Equal(t, "RLC AI Deck", TitleFromFilename("x/RLC-AI_deck.pptx"))
	assert.Equal(t, "One", TitleFromFilename("one.pdf"))
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), d)

	d, ok = ParseDate("2024-01-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", d.Format(model.DateLayout))

	_, ok = ParseDate("01/02/2024")
	assert.False(t, ok)
}
