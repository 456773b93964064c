package render

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders for photos and backgrounds
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jsgian/go-wishes/internal/config"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

var (
	placeholderGrey = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	textColor       = image.Black
)

// decodeFile reads any registered image format (png, jpeg, webp).
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// canvasFrom copies a background into a fresh RGBA surface. Backgrounds are
// shared between renders and never drawn on directly.
func canvasFrom(bg image.Image) *image.RGBA {
	b := bg.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), bg, b.Min, xdraw.Src)
	return dst
}

func placeholder(size config.Size) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size.W, size.H))
	xdraw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderGrey}, image.Point{}, xdraw.Src)
	return img
}

// pastePhoto scales photo to size and composites it with its top-left corner at at.
func pastePhoto(dst *image.RGBA, photo image.Image, at config.Point, size config.Size) {
	r := image.Rect(at.X, at.Y, at.X+size.W, at.Y+size.H)
	xdraw.CatmullRom.Scale(dst, r, photo, photo.Bounds(), xdraw.Over, nil)
}

// drawText draws s with its top-left corner at at. The font drawer positions on
// the baseline, so the anchor is shifted down by the face ascent.
func drawText(dst *image.RGBA, face font.Face, src image.Image, at config.Point, s string) {
	if s == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(at.X, at.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

// centeredX returns the x coordinate that horizontally centres s on a surface of width w.
func centeredX(face font.Face, s string, w int) int {
	adv := font.MeasureString(face, s).Ceil()
	if adv >= w {
		return 0
	}
	return (w - adv) / 2
}

// loadFont parses a TrueType/OpenType file. A nil font means "use the built-in face".
func loadFont(dir, name string) *opentype.Font {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err == nil {
		var f *opentype.Font
		if f, err = opentype.Parse(data); err == nil {
			return f
		}
	}

	slog.Warn(config.MsgFontFallback,
		config.LogKeyComponent, config.CompRender,
		config.LogKeyFile, path,
		config.LogKeyError, err,
	)
	return nil
}

// newFace returns a face for one render. opentype faces hold scratch buffers and
// must not be shared between goroutines.
func newFace(f *opentype.Font, size float64) (font.Face, error) {
	if f == nil {
		return basicfont.Face7x13, nil
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     config.FontDPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrFontLoad, err)
	}
	return face, nil
}
