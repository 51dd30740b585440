package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

type fakeRenderer struct {
	shot  []byte
	err   error
	calls int
	last  string
}

func (f *fakeRenderer) Render(_ context.Context, docPath string) ([]byte, error) {
	f.calls++
	f.last = docPath
	return f.shot, f.err
}

func newGenerator(t *testing.T, r Renderer) *Generator {
	t.Helper()
	return &Generator{FS: fsys.OS{}, Width: 320, Height: 180, Renderer: r, Log: zaptest.NewLogger(t)}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG))
	return buf.Bytes()
}

func decodeFile(t *testing.T, p string) image.Image {
	t.Helper()
	img, err := imaging.Open(p)
	require.NoError(t, err)
	return img
}

func TestGenerate_PlaceholderForZeroByteDocument(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "two.pdf")
	require.NoError(t, os.WriteFile(doc, nil, 0o644))
	out := filepath.Join(dir, "thumbs", "two_.pdf.png")

	r := &fakeRenderer{}
	src, err := newGenerator(t, r).Generate(context.Background(), Request{Document: doc, Output: out, Format: model.FormatPDF})
	require.NoError(t, err)

	assert.Equal(t, SourcePlaceholder, src)
	assert.Zero(t, r.calls, "non-markup documents are never rendered")
	img := decodeFile(t, out)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())
}

func TestGenerate_PlaceholderForUnreadableDocument(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "deck.png")

	src, err := newGenerator(t, nil).Generate(context.Background(), Request{Document: filepath.Join(dir, "missing.pptx"), Output: out, Format: model.FormatPPTX})
	require.NoError(t, err)
	assert.Equal(t, SourcePlaceholder, src)
	assert.Equal(t, 320, decodeFile(t, out).Bounds().Dx())
}

func TestGenerate_PlaceholderIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "quarterly-review.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF"), 0o644))
	g := newGenerator(t, nil)

	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	_, err := g.Generate(context.Background(), Request{Document: doc, Output: a, Format: model.FormatPDF})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), Request{Document: doc, Output: b, Format: model.FormatPDF})
	require.NoError(t, err)

	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerate_RenderedMarkup(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "one.html")
	require.NoError(t, os.WriteFile(doc, []byte("<title>One</title>"), 0o644))
	out := filepath.Join(dir, "one.png")

	r := &fakeRenderer{shot: pngBytes(t, 1920, 1080, color.White)}
	src, err := newGenerator(t, r).Generate(context.Background(), Request{Document: doc, Output: out, Format: model.FormatHTML})
	require.NoError(t, err)

	assert.Equal(t, SourceRendered, src)
	assert.Equal(t, 1, r.calls)
	img := decodeFile(t, out)
	assert.Equal(t, image.Rect(0, 0, 320, 180), img.Bounds())
	rr, gg, bb, _ := img.At(160, 90).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{rr, gg, bb})
}

func TestGenerate_RendersPreviewPath(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "src", "one.html")
	preview := filepath.Join(dir, "docs", "one.html")

	r := &fakeRenderer{shot: pngBytes(t, 64, 36, color.White)}
	_, err := newGenerator(t, r).Generate(context.Background(), Request{
		Document: doc,
		Preview:  preview,
		Output:   filepath.Join(dir, "one.png"),
		Format:   model.FormatHTML,
	})
	require.NoError(t, err)
	assert.Equal(t, preview, r.last)
}

func TestGenerate_RenderFailureFallsBack(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "broken.html")
	require.NoError(t, os.WriteFile(doc, []byte("<html>"), 0o644))

	for name, r := range map[string]*fakeRenderer{
		"renderer error": {err: errors.New("navigation timeout")},
		"garbage image":  {shot: []byte("not a png")},
	} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(dir, name+".png")
			src, err := newGenerator(t, r).Generate(context.Background(), Request{Document: doc, Output: out, Format: model.FormatHTML})
			require.NoError(t, err)
			assert.Equal(t, SourcePlaceholder, src)

			img := decodeFile(t, out)
			assert.Equal(t, 320, img.Bounds().Dx())
			bg := PaletteFor(model.FormatHTML).Background
			rr, gg, bb, _ := img.At(2, 2).RGBA()
			assert.Equal(t, [3]uint32{uint32(bg.R) * 0x101, uint32(bg.G) * 0x101, uint32(bg.B) * 0x101}, [3]uint32{rr, gg, bb})
		})
	}
}

func TestGenerate_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "one.html")
	require.NoError(t, os.WriteFile(doc, []byte("<title>One</title>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.jpg"), func() []byte {
		var buf bytes.Buffer
		require.NoError(t, imaging.Encode(&buf, imaging.New(1000, 1000, color.NRGBA{R: 200, A: 255}), imaging.JPEG))
		return buf.Bytes()
	}(), 0o644))
	out := filepath.Join(dir, "out.png")

	r := &fakeRenderer{shot: pngBytes(t, 10, 10, color.White)}
	src, err := newGenerator(t, r).Generate(context.Background(), Request{Document: doc, Output: out, Format: model.FormatHTML})
	require.NoError(t, err)

	assert.Equal(t, SourceOverride, src)
	assert.Zero(t, r.calls)
	img := decodeFile(t, out)
	assert.Equal(t, image.Rect(0, 0, 320, 180), img.Bounds())
	rr, _, _, _ := img.At(160, 90).RGBA()
	assert.Greater(t, rr, uint32(0xb000))
}

func TestGenerate_OverrideForPDF(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "two.pdf")
	require.NoError(t, os.WriteFile(doc, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.png"), pngBytes(t, 40, 40, color.Black), 0o644))

	src, err := newGenerator(t, nil).Generate(context.Background(), Request{Document: doc, Output: filepath.Join(dir, "o.png"), Format: model.FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, SourceOverride, src)
}

func TestGenerate_CorruptOverrideFallsBack(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "one.html")
	require.NoError(t, os.WriteFile(doc, []byte("<title>One</title>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.png"), []byte("nope"), 0o644))
	out := filepath.Join(dir, "o.png")

	r := &fakeRenderer{shot: pngBytes(t, 10, 10, color.White)}
	src, err := newGenerator(t, r).Generate(context.Background(), Request{Document: doc, Output: out, Format: model.FormatHTML})
	require.NoError(t, err)
	assert.Equal(t, SourceRendered, src)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, image.Rect(0, 0, 320, 180), decodeFile(t, out).Bounds())

	pdf := filepath.Join(dir, "two.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.jpg"), []byte("nope"), 0o644))
	src, err = newGenerator(t, nil).Generate(context.Background(), Request{Document: pdf, Output: out, Format: model.FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, SourcePlaceholder, src)
}

func TestGenerate_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := newGenerator(t, nil).Generate(context.Background(), Request{Document: filepath.Join(dir, "x.pdf"), Output: filepath.Join(blocker, "x.png"), Format: model.FormatPDF})
	require.Error(t, err)
}

func TestPlaceholder_PalettesDiffer(t *testing.T) {
	html, err := Placeholder(200, 100, model.FormatHTML, "deck")
	require.NoError(t, err)
	pdf, err := Placeholder(200, 100, model.FormatPDF, "deck")
	require.NoError(t, err)
	pptx, err := Placeholder(200, 100, model.FormatPPTX, "deck")
	require.NoError(t, err)

	assert.NotEqual(t, html.At(1, 1), pdf.At(1, 1))
	assert.NotEqual(t, pdf.At(1, 1), pptx.At(1, 1))

	_, err = Placeholder(0, 100, model.FormatHTML, "deck")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	require.NoError(t, loadFonts())
	face, err := opentype.NewFace(labelFont, &opentype.FaceOptions{Size: 20, DPI: 72})
	require.NoError(t, err)
	defer face.Close()

	assert.Equal(t, "short", Truncate(face, "short", fixed.I(500)))

	long := "an-extremely-long-presentation-file-name-that-cannot-fit"
	got := Truncate(face, long, fixed.I(120))
	assert.NotEqual(t, long, got)
	assert.True(t, len(got) < len(long))
	assert.LessOrEqual(t, font.MeasureString(face, got), fixed.I(120))
	assert.Contains(t, got, ellipsis)
}
