// Package render produces the landing page and its companion pages.
package render

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// ScriptVersion identifies the client script contract (storage keys, data
// shape). Bump it when templates/library.js changes incompatibly.
const ScriptVersion = "3"

// Client-side storage keys and limits.
const (
	KeyRecent   = "preslib.recent"
	KeyPinned   = "preslib.pinned"
	KeyAccess   = "preslib.access"
	RecentLimit = 10
	RecentShown = 6
	PinLimit    = 3
)

// PublishedDir is the output folder holding the copied documents.
const PublishedDir = "presentations"

// ThumbnailDir is the output folder holding the flattened thumbnails.
const ThumbnailDir = "thumbnails"

// ViewerPage is the wrapper page for PDF documents.
const ViewerPage = "viewer.html"

//go:embed templates
var templateFS embed.FS

var (
	libraryJS  = mustRead("templates/library.js")
	libraryCSS = mustRead("templates/library.css")

	pages = template.Must(template.New("pages").Funcs(template.FuncMap{
		"lower": strings.ToLower,
	}).ParseFS(templateFS, "templates/*.tmpl"))
)

func mustRead(name string) string {
	b, err := templateFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// LibraryScript returns the embedded client script.
func LibraryScript() string {
	return libraryJS
}

type pageData struct {
	Title         string
	Total         int
	CategoryCount int
	Sections      []section
	Gated         bool
	Client        clientConfig
	Style         template.CSS
	Script        template.JS
	ScriptVersion string
	LastUpdated   string
	ThumbWidth    int
	ThumbHeight   int
}

type section struct {
	Name  string
	ID    string
	Cards []card
}

type card struct {
	Path         string
	Title        string
	Date         string
	Author       string
	Category     string
	ShowCategory bool
	Format       string
	ShowFormat   bool
	Tags         []string
	Href         string
	Download     bool
	Thumb        string
	Description  template.HTML
	Summary      string
}

type clientConfig struct {
	Version   string                  `json:"version"`
	Keys      clientKeys              `json:"keys"`
	Limits    clientLimits            `json:"limits"`
	Access    clientAccess            `json:"access"`
	Documents map[string]clientRecord `json:"documents"`
}

type clientKeys struct {
	Recent string `json:"recent"`
	Pinned string `json:"pinned"`
	Access string `json:"access"`
}

type clientLimits struct {
	Recent      int `json:"recent"`
	RecentShown int `json:"recentShown"`
	Pinned      int `json:"pinned"`
}

type clientAccess struct {
	Hashes   []string `json:"hashes"`
	WindowMs int64    `json:"windowMs"`
}

type clientRecord struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Format   string `json:"format"`
	Date     string `json:"date"`
	Href     string `json:"href"`
	Thumb    string `json:"thumb"`
}

// Render returns the landing page for ctx.
func Render(ctx model.RenderContext) (string, error) {
	data := pageData{
		Title:         ctx.SiteTitle,
		Total:         ctx.Catalog.Total(),
		CategoryCount: ctx.Catalog.CategoryCount(),
		Gated:         len(ctx.AccessCodes) > 0,
		Style:         template.CSS(libraryCSS),
		Script:        template.JS(libraryJS),
		ScriptVersion: ScriptVersion,
		LastUpdated:   ctx.Now.Format("January 2, 2006"),
		ThumbWidth:    ctx.ThumbWidth,
		ThumbHeight:   ctx.ThumbHeight,
		Client: clientConfig{
			Version: ScriptVersion,
			Keys:    clientKeys{Recent: KeyRecent, Pinned: KeyPinned, Access: KeyAccess},
			Limits:  clientLimits{Recent: RecentLimit, RecentShown: RecentShown, Pinned: PinLimit},
			Access: clientAccess{
				Hashes:   HashCodes(ctx.AccessCodes),
				WindowMs: ctx.AccessWindow.Milliseconds(),
			},
			Documents: make(map[string]clientRecord, len(ctx.Records)),
		},
	}

	for _, rec := range ctx.Records {
		data.Client.Documents[rec.SourcePath] = clientRecord{
			Title:    rec.Title,
			Category: rec.Category,
			Format:   string(rec.Format),
			Date:     rec.DateString(),
			Href:     Href(rec),
			Thumb:    ThumbnailHref(rec),
		}
	}

	for _, g := range ctx.Catalog.Groups {
		s := section{Name: g.Name, ID: SectionID(g.Name)}
		for _, rec := range g.Documents {
			s.Cards = append(s.Cards, newCard(rec))
		}
		data.Sections = append(data.Sections, s)
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "index.html.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to execute landing page template: %w", err)
	}
	return buf.String(), nil
}

func newCard(rec *model.DocumentRecord) card {
	return card{
		Path:         rec.SourcePath,
		Title:        rec.Title,
		Date:         rec.DateString(),
		Author:       rec.Author,
		Category:     rec.Category,
		ShowCategory: rec.Category != model.Uncategorized,
		Format:       string(rec.Format),
		ShowFormat:   rec.Format != model.DefaultFormat,
		Tags:         rec.Tags,
		Href:         Href(rec),
		Download:     rec.Format == model.FormatPPTX,
		Thumb:        ThumbnailHref(rec),
		Description:  rec.Description,
		Summary:      rec.Summary,
	}
}

// PublishedHref is the page-relative URL of the copied document.
func PublishedHref(rec *model.DocumentRecord) string {
	segments := strings.Split(rec.SourcePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return path.Join(append([]string{PublishedDir}, segments...)...)
}

// Href is the card's click target: the document itself for markup and
// slide decks (the latter downloaded), the viewer page for PDFs.
func Href(rec *model.DocumentRecord) string {
	if rec.Format == model.FormatPDF {
		q := url.Values{}
		q.Set("file", path.Join(PublishedDir, rec.SourcePath))
		q.Set("title", rec.Title)
		return ViewerPage + "?" + q.Encode()
	}
	return PublishedHref(rec)
}

// ThumbnailHref is the page-relative URL of the record's thumbnail.
func ThumbnailHref(rec *model.DocumentRecord) string {
	return path.Join(ThumbnailDir, url.PathEscape(rec.ThumbnailName()))
}

// SectionID is the element id of a category section.
func SectionID(category string) string {
	var b strings.Builder
	b.WriteString("cat-")
	for _, r := range strings.ToLower(category) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "-%x-", r)
		}
	}
	return b.String()
}

// HashCodes returns the hex SHA-256 digests embedded in the page in place of
// the codes themselves.
func HashCodes(codes []string) []string {
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		sum := sha256.Sum256([]byte(strings.TrimSpace(c)))
		hashes = append(hashes, hex.EncodeToString(sum[:]))
	}
	return hashes
}

// RenderViewer returns the PDF wrapper page.
func RenderViewer(siteTitle string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Title     string
		Style     template.CSS
		Published string
	}{siteTitle, template.CSS(libraryCSS), PublishedDir}
	if err := pages.ExecuteTemplate(&buf, "viewer.html.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to execute viewer template: %w", err)
	}
	return buf.String(), nil
}

// RenderCodePage returns the page announcing a generated access code.
func RenderCodePage(siteTitle, code string, window time.Duration, now time.Time) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Title     string
		Code      string
		Window    string
		Generated string
		Style     template.CSS
	}{siteTitle, code, window.String(), now.Format("January 2, 2006 15:04 MST"), template.CSS(libraryCSS)}
	if err := pages.ExecuteTemplate(&buf, "codepage.html.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to execute access code template: %w", err)
	}
	return buf.String(), nil
}
