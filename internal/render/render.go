package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/roster"
	"golang.org/x/image/font/opentype"
)

// Artifact is a rendered greeting: the encoded image plus its caption.
type Artifact struct {
	MemberID string
	Kind     engine.Kind
	Caption  string
	Image    []byte
	MIME     string
	// Path is the troubleshooting copy under the output dir, empty when disabled.
	Path string
	// Degraded is set when the photo was replaced by the placeholder.
	Degraded bool
}

// RenderError is a rendering fault scoped to one member.
type RenderError struct {
	MemberID string
	Kind     engine.Kind
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s for %s/%s: %v", config.ErrRender, e.MemberID, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer composites member greetings onto the per-kind backgrounds.
// It is safe for concurrent use: backgrounds and fonts are read-only after New.
type Renderer struct {
	cfg         config.RenderSettings
	captions    *Captioner
	backgrounds map[engine.Kind]image.Image
	bold        *opentype.Font
	regular     *opentype.Font
}

// New loads the background of every kind. A missing or unreadable background is
// a *config.ConfigurationError: no member can be greeted for that kind.
func New(cfg config.RenderSettings, captions *Captioner) (*Renderer, error) {
	if captions == nil {
		captions = NewCaptioner(cfg.Language)
	}
	r := &Renderer{
		cfg:         cfg,
		captions:    captions,
		backgrounds: make(map[engine.Kind]image.Image, len(engine.Kinds)),
	}

	var problems []string
	for _, kind := range engine.Kinds {
		path := TemplatePath(cfg.TemplatesDir, kind)
		bg, err := decodeFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, fmt.Sprintf("%s: %s", config.ErrTemplateMissing, path))
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s: %s: %v", config.ErrTemplateDecode, path, err))
		default:
			r.backgrounds[kind] = bg
		}
	}
	if len(problems) > 0 {
		return nil, &config.ConfigurationError{Problems: problems}
	}

	r.bold = loadFont(cfg.FontsDir, cfg.BoldFont)
	r.regular = loadFont(cfg.FontsDir, cfg.RegularFont)
	return r, nil
}

// Captions exposes the captioner used for the artifacts.
func (r *Renderer) Captions() *Captioner { return r.captions }

// Render produces the greeting for one member. A missing or corrupt photo is
// replaced by a grey placeholder; any other fault is a *RenderError.
func (r *Renderer) Render(m roster.Member, kind engine.Kind) (art *Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			art = nil
			err = &RenderError{MemberID: m.ID, Kind: kind, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	bg, ok := r.backgrounds[kind]
	if !ok {
		return nil, &RenderError{MemberID: m.ID, Kind: kind, Err: errors.New(config.ErrTemplateMissing)}
	}

	nameFace, err := newFace(r.bold, r.cfg.NameSize)
	if err != nil {
		return nil, &RenderError{MemberID: m.ID, Kind: kind, Err: err}
	}
	defer nameFace.Close()
	textFace, err := newFace(r.regular, r.cfg.TextSize)
	if err != nil {
		return nil, &RenderError{MemberID: m.ID, Kind: kind, Err: err}
	}
	defer textFace.Close()

	g := r.cfg.Geometry
	canvas := canvasFrom(bg)

	photo, degraded := r.photo(m, kind)
	pastePhoto(canvas, photo, g.Photo, g.PhotoSize)

	drawText(canvas, nameFace, textColor, g.Name, m.Name)
	drawText(canvas, textFace, textColor, g.Title, m.Designation)
	drawText(canvas, textFace, textColor, g.GroupCity, GroupCity(m))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: r.quality()}); err != nil {
		return nil, &RenderError{MemberID: m.ID, Kind: kind, Err: fmt.Errorf("%s: %w", config.ErrEncode, err)}
	}

	art = &Artifact{
		MemberID: m.ID,
		Kind:     kind,
		Caption:  r.captions.Caption(m, kind),
		Image:    buf.Bytes(),
		MIME:     config.MimeJPEG,
		Degraded: degraded,
	}

	if r.cfg.OutputDir != "" {
		path, err := r.writeOutput(art)
		if err != nil {
			return nil, &RenderError{MemberID: m.ID, Kind: kind, Err: err}
		}
		art.Path = path
	}

	slog.Debug(config.MsgRendered,
		config.LogKeyComponent, config.CompRender,
		config.LogKeyMemberID, m.ID,
		config.LogKeyKind, string(kind),
		config.LogKeySizeBytes, len(art.Image),
	)
	return art, nil
}

// photo returns the member photo, or the placeholder and true when it cannot be used.
func (r *Renderer) photo(m roster.Member, kind engine.Kind) (image.Image, bool) {
	var err error
	if m.Photo != "" {
		var img image.Image
		if img, err = decodeFile(filepath.Join(r.cfg.PhotosDir, m.Photo)); err == nil {
			return img, false
		}
	}

	attrs := []any{
		config.LogKeyComponent, config.CompRender,
		config.LogKeyMemberID, m.ID,
		config.LogKeyKind, string(kind),
		config.LogKeyFile, m.Photo,
	}
	if err != nil {
		attrs = append(attrs, config.LogKeyError, err)
	}
	slog.Warn(config.MsgPhotoFallback, attrs...)
	return placeholder(r.cfg.Geometry.PhotoSize), true
}

func (r *Renderer) writeOutput(art *Artifact) (string, error) {
	dir := filepath.Join(r.cfg.OutputDir, string(art.Kind))
	if err := os.MkdirAll(dir, config.DirPermShared); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrWriteOutput, err)
	}
	path := filepath.Join(dir, OutputName(art.MemberID, art.Kind))
	if err := os.WriteFile(path, art.Image, config.FilePermShared); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrWriteOutput, err)
	}
	return path, nil
}

func (r *Renderer) quality() int {
	q := r.cfg.JPEGQuality
	if q < 1 || q > 100 {
		return config.DefaultJPEGQuality
	}
	return q
}

// TemplatePath is the background file for a kind: {dir}/{kind}_template.png.
func TemplatePath(dir string, kind engine.Kind) string {
	return filepath.Join(dir, fmt.Sprintf(config.TemplateFileFormat, kind))
}

// OutputName is the rendered file name: {member_id}_{kind}.jpg. Path separators
// in the id are replaced so the file always lands in the kind directory.
func OutputName(memberID string, kind engine.Kind) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, memberID)
	return fmt.Sprintf(config.OutputFileFormat, safe, kind)
}
