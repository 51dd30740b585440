package thumbnail

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// Palette is the colour scheme of a placeholder.
type Palette struct {
	Background color.NRGBA
	Foreground color.NRGBA
	Accent     color.NRGBA
}

var palettes = map[model.Format]Palette{
	model.FormatHTML: {
		Background: color.NRGBA{R: 15, G: 23, B: 42, A: 255},
		Foreground: color.NRGBA{R: 18, G: 166, B: 111, A: 255},
		Accent:     color.NRGBA{R: 30, G: 41, B: 59, A: 255},
	},
	model.FormatPDF: {
		Background: color.NRGBA{R: 69, G: 10, B: 10, A: 255},
		Foreground: color.NRGBA{R: 251, G: 113, B: 133, A: 255},
		Accent:     color.NRGBA{R: 127, G: 29, B: 29, A: 255},
	},
	model.FormatPPTX: {
		Background: color.NRGBA{R: 67, G: 20, B: 7, A: 255},
		Foreground: color.NRGBA{R: 251, G: 191, B: 36, A: 255},
		Accent:     color.NRGBA{R: 154, G: 52, B: 18, A: 255},
	},
}

// PaletteFor returns the placeholder colours of a format.
func PaletteFor(format model.Format) Palette {
	if p, ok := palettes[format]; ok {
		return p
	}
	return palettes[model.DefaultFormat]
}

var (
	fontsOnce sync.Once
	fontsErr  error
	labelFont *opentype.Font
	badgeFont *opentype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		labelFont, fontsErr = opentype.Parse(goregular.TTF)
		if fontsErr != nil {
			return
		}
		badgeFont, fontsErr = opentype.Parse(gobold.TTF)
	})
	return fontsErr
}

const ellipsis = "…"

// Placeholder draws a width x height image in the format's colours with the
// document name centred and the format in the lower band. The output depends
// only on its arguments.
func Placeholder(width, height int, format model.Format, name string) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid placeholder size %dx%d", width, height)
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("failed to load placeholder font: %w", err)
	}
	pal := PaletteFor(format)

	img := imaging.New(width, height, pal.Background)

	band := height / 6
	bandImg := imaging.New(width, band, pal.Accent)
	img = imaging.Paste(img, bandImg, image.Pt(0, height-band))

	labelSize := float64(height) / 9.4
	label, err := opentype.NewFace(labelFont, &opentype.FaceOptions{Size: labelSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer label.Close()

	maxWidth := fixed.I(width * 9 / 10)
	text := Truncate(label, name, maxWidth)
	drawCentered(img, label, text, pal.Foreground, (height-band)/2)

	badge, err := opentype.NewFace(badgeFont, &opentype.FaceOptions{Size: float64(band) / 2.2, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer badge.Close()
	drawCentered(img, badge, strings.ToUpper(string(format)), pal.Foreground, height-band/2)

	return img, nil
}

// Truncate shortens s with an ellipsis until it fits within maxWidth.
func Truncate(face font.Face, s string, maxWidth fixed.Int26_6) string {
	if font.MeasureString(face, s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimRight(string(runes), " -_") + ellipsis
		if font.MeasureString(face, candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

// drawCentered draws text horizontally centred with its visual middle on y.
func drawCentered(dst *image.NRGBA, face font.Face, text string, col color.NRGBA, y int) {
	m := face.Metrics()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
	}
	w := d.MeasureString(text)
	x := (fixed.I(dst.Bounds().Dx()) - w) / 2
	baseline := fixed.I(y) + (m.Ascent-m.Descent)/2
	d.Dot = fixed.Point26_6{X: x, Y: baseline}
	d.DrawString(text)
}
