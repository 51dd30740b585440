// Package thumbnail produces the fixed-size preview image of a document.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// Source says how a thumbnail was produced.
type Source string

const (
	SourceOverride    Source = "override"
	SourceRendered    Source = "rendered"
	SourcePlaceholder Source = "placeholder"
)

// OverrideExts are checked, in order, for a manually supplied image next to
// the document.
var OverrideExts = []string{".png", ".jpg", ".jpeg"}

// Renderer captures a viewport screenshot of a markup document.
type Renderer interface {
	Render(ctx context.Context, docPath string) ([]byte, error)
}

// Request describes one thumbnail to produce.
type Request struct {
	// Document is the source file; an override image is looked up beside it.
	Document string
	// Preview is the file the renderer opens, typically the published copy
	// whose relative assets resolve. Empty means Document.
	Preview string
	Output  string
	Format  model.Format
}

// Generator writes thumbnails of a fixed size.
type Generator struct {
	FS     fsys.FS
	Width  int
	Height int
	// Renderer may be nil, in which case markup documents get placeholders.
	Renderer Renderer
	Log      *zap.Logger
}

// Generate writes exactly one image at req.Output. An unusable override or a
// renderer failure falls back to the next source; only write failures are
// returned.
func (g *Generator) Generate(ctx context.Context, req Request) (Source, error) {
	docPath, outPath, format := req.Document, req.Output, req.Format
	if override, ok := g.findOverride(docPath); ok {
		img, err := g.loadOverride(override)
		if err == nil {
			g.Log.Debug("using custom thumbnail", zap.String("image", filepath.Base(override)))
			return SourceOverride, g.write(outPath, g.cover(img))
		}
		g.Log.Warn("ignoring unusable custom thumbnail",
			zap.String("document", filepath.Base(docPath)), zap.Error(err))
	}

	if format == model.FormatHTML && g.Renderer != nil {
		preview := req.Preview
		if preview == "" {
			preview = docPath
		}
		shot, err := g.Renderer.Render(ctx, preview)
		if err == nil {
			var img image.Image
			img, err = imaging.Decode(bytes.NewReader(shot))
			if err == nil {
				return SourceRendered, g.write(outPath, g.cover(img))
			}
		}
		g.Log.Warn("thumbnail generation failed, creating placeholder",
			zap.String("document", filepath.Base(docPath)), zap.Error(err))
	}

	img, err := Placeholder(g.Width, g.Height, format, baseName(docPath))
	if err != nil {
		return "", err
	}
	return SourcePlaceholder, g.write(outPath, img)
}

func (g *Generator) loadOverride(name string) (image.Image, error) {
	raw, err := g.FS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read custom thumbnail %s: %w", name, err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode custom thumbnail %s: %w", name, err)
	}
	return img, nil
}

func (g *Generator) findOverride(docPath string) (string, bool) {
	stem := strings.TrimSuffix(docPath, filepath.Ext(docPath))
	for _, ext := range OverrideExts {
		for _, candidate := range []string{stem + ext, stem + strings.ToUpper(ext)} {
			if fsys.Exists(g.FS, candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func (g *Generator) cover(img image.Image) image.Image {
	return imaging.Fill(img, g.Width, g.Height, imaging.Center, imaging.Lanczos)
}

func (g *Generator) write(outPath string, img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode thumbnail %s: %w", outPath, err)
	}
	if err := g.FS.WriteFile(outPath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}

func baseName(p string) string {
	b := filepath.Base(p)
	return strings.TrimSuffix(b, filepath.Ext(b))
}
