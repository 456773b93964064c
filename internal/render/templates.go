package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	xdraw "golang.org/x/image/draw"
)

var templateColors = map[engine.Kind]color.RGBA{
	engine.Birthday:    {R: 255, G: 165, B: 0, A: 255},
	engine.Anniversary: {R: 70, G: 130, B: 180, A: 255},
}

// MakeTemplates writes a plain coloured background for every kind whose
// template file is absent, and returns the paths it created. Existing files are
// left untouched.
func MakeTemplates(cfg config.RenderSettings, captions *Captioner) ([]string, error) {
	if captions == nil {
		captions = NewCaptioner(cfg.Language)
	}
	if err := os.MkdirAll(cfg.TemplatesDir, config.DirPermShared); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	labelFont := loadFont(cfg.FontsDir, cfg.BoldFont)

	var created []string
	for _, kind := range engine.Kinds {
		path := TemplatePath(cfg.TemplatesDir, kind)
		if _, err := os.Stat(path); err == nil {
			slog.Info(config.MsgTemplateExists,
				config.LogKeyComponent, config.CompRender,
				config.LogKeyFile, path,
			)
			continue
		}

		img := image.NewRGBA(image.Rect(0, 0, config.TemplateWidth, config.TemplateHeight))
		xdraw.Draw(img, img.Bounds(), &image.Uniform{C: templateColors[kind]}, image.Point{}, xdraw.Src)

		face, err := newFace(labelFont, cfg.NameSize)
		if err != nil {
			return created, err
		}
		label := captions.TemplateLabel(kind)
		at := config.Point{X: centeredX(face, label, config.TemplateWidth), Y: config.TemplateLabelY}
		drawText(img, face, image.White, at, label)
		face.Close()

		if err := writePNG(path, img); err != nil {
			return created, err
		}
		created = append(created, path)
		slog.Info(config.MsgTemplateCreated,
			config.LogKeyComponent, config.CompRender,
			config.LogKeyFile, path,
		)
	}
	return created, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, config.FilePermShared)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrWriteOutput, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", config.ErrEncode, err)
	}
	return f.Close()
}

// FirstPhoto returns the first png/jpeg/webp file name in dir, in name order.
func FirstPhoto(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrNoPhotoAvailable, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, n := range names {
		switch strings.ToLower(n[strings.LastIndex(n, ".")+1:]) {
		case "png", "jpg", "jpeg", "webp":
			return n, nil
		}
	}
	return "", errors.New(config.ErrNoPhotoAvailable)
}
