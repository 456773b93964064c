package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/roster"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Captioner builds the per-kind caption text from the embedded locale templates.
// Caption templates receive Name, Designation and GroupCity; empty fields
// render as empty strings.
type Captioner struct {
	Languages []string
	localizer *i18n.Localizer
}

// NewCaptioner loads every embedded locale and selects lang, falling back to
// English for missing keys.
func NewCaptioner(lang string) *Captioner {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	c := &Captioner{}

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		slog.Error(config.ErrLocalesAccess,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyError, err,
		)
		return c
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "active.") || !strings.HasSuffix(name, ".json") {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		langCode := strings.TrimSuffix(strings.TrimPrefix(name, "active."), ".json")
		if langCode == "" {
			slog.Warn(config.MsgLocaleBadName,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
			slog.Error(config.ErrLocaleLoad,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
				config.LogKeyError, err,
			)
			continue
		}
		c.Languages = append(c.Languages, langCode)
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, langCode,
		)
	}

	if lang == "" {
		lang = config.DefaultLanguage
	}
	c.localizer = i18n.NewLocalizer(bundle, lang, config.DefaultLanguage)
	return c
}

// Caption returns the greeting text for a member. Empty fields stay empty.
func (c *Captioner) Caption(m roster.Member, kind engine.Kind) string {
	data := map[string]interface{}{
		"Name":        m.Name,
		"Designation": m.Designation,
		"GroupCity":   GroupCity(m),
	}

	key, fallback := config.TKeyCaptionBirthday, config.FallbackCaptionBirthday
	if kind == engine.Anniversary {
		key, fallback = config.TKeyCaptionAnniversary, config.FallbackCaptionAnniversary
	}

	if msg, ok := c.localize(key, data); ok {
		return msg
	}
	return fmt.Sprintf(fallback, m.Name, m.Designation, GroupCity(m))
}

// TemplateLabel is the text stamped on generated placeholder backgrounds.
func (c *Captioner) TemplateLabel(kind engine.Kind) string {
	title := kindTitle(kind)
	if msg, ok := c.localize(config.TKeyTemplateLabel, map[string]interface{}{"Kind": title}); ok {
		return msg
	}
	return fmt.Sprintf(config.FallbackTemplateLabel, title)
}

// SummaryFormatter returns a closure that localizes calendar feed titles.
func (c *Captioner) SummaryFormatter() func(name string, kind engine.Kind, years int) string {
	return func(name string, kind engine.Kind, years int) string {
		key, keyYears := config.TKeyEvtBirthday, config.TKeyEvtBirthdayYears
		if kind == engine.Anniversary {
			key, keyYears = config.TKeyEvtAnniversary, config.TKeyEvtAnnivYears
		}

		data := map[string]interface{}{"Name": name, "Years": years}
		if years > 0 {
			key = keyYears
		}
		if msg, ok := c.localize(key, data); ok {
			return msg
		}
		return fmt.Sprintf("%s: %s", kindTitle(kind), name)
	}
}

func (c *Captioner) localize(key string, data map[string]interface{}) (string, bool) {
	if c.localizer == nil {
		return "", false
	}
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyError, err,
		)
		return "", false
	}
	return msg, true
}

// GroupCity joins the non-empty group and city fields.
func GroupCity(m roster.Member) string {
	var parts []string
	for _, p := range []string{m.GroupName, m.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, config.GroupCitySeparator)
}

func kindTitle(kind engine.Kind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
