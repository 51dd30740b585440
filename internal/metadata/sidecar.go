package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// SidecarExt is the extension of sidecar files: YAML frontmatter plus an
// optional Markdown description body.
const SidecarExt = ".md"

// Sidecar is the frontmatter of a sidecar file. Empty fields leave the
// extracted value alone.
type Sidecar struct {
	Title      string   `yaml:"title,omitempty"`
	Date       string   `yaml:"date,omitempty"`
	Author     string   `yaml:"author,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Visibility string   `yaml:"visibility,omitempty"`

	body []byte
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// SidecarPath is where the sidecar for a document id lives.
func (e *Extractor) SidecarPath(id string) string {
	return filepath.Join(e.MetadataDir, id+SidecarExt)
}

func (e *Extractor) readSidecar(id string) (*Sidecar, error) {
	p := e.SidecarPath(id)
	raw, err := e.FS.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar %s: %w", p, err)
	}

	var sc Sidecar
	body, err := frontmatter.Parse(bytes.NewReader(raw), &sc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sidecar %s: %w", p, err)
	}
	sc.body = bytes.TrimSpace(body)
	return &sc, nil
}

func (sc *Sidecar) apply(rec *model.DocumentRecord) error {
	if sc.Title != "" {
		rec.Title = strings.TrimSpace(sc.Title)
	}
	if sc.Date != "" {
		date, ok := ParseDate(sc.Date)
		if !ok {
			return fmt.Errorf("invalid date %q, use YYYY-MM-DD", sc.Date)
		}
		rec.Date = date
	}
	if sc.Author != "" {
		rec.Author = strings.TrimSpace(sc.Author)
	}
	if sc.Tags != nil {
		rec.Tags = NormalizeTags(sc.Tags)
	}
	switch sc.Visibility {
	case "":
	case model.VisibilityPublished, model.VisibilityDraft:
		rec.Visibility = sc.Visibility
	default:
		return fmt.Errorf("invalid visibility %q", sc.Visibility)
	}
	if len(sc.body) > 0 {
		var buf bytes.Buffer
		if err := markdown.Convert(sc.body, &buf); err != nil {
			return fmt.Errorf("failed to render description: %w", err)
		}
		rec.Description = template.HTML(buf.String())
	}
	return nil
}

// WriteSidecar writes a sidecar seeded from rec unless one already exists,
// so manual edits survive. It reports whether a file was written.
func (e *Extractor) WriteSidecar(rec model.DocumentRecord) (bool, error) {
	if e.MetadataDir == "" {
		return false, errors.New("metadata directory not configured")
	}
	p := e.SidecarPath(rec.ID())
	if _, err := e.FS.Stat(p); err == nil {
		return false, nil
	}

	head, err := yaml.Marshal(Sidecar{
		Title:      rec.Title,
		Date:       rec.DateString(),
		Author:     rec.Author,
		Tags:       rec.Tags,
		Visibility: rec.Visibility,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode sidecar for %s: %w", rec.SourcePath, err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n")
	if rec.Summary != "" {
		buf.WriteString("\n")
		buf.WriteString(rec.Summary)
		buf.WriteString("\n")
	}
	if err := e.FS.WriteFile(p, buf.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}
