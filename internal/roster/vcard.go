package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/jsgian/go-wishes/internal/config"
)

// VCardSource reads the roster from an address-book export (.vcf).
//
// Mapping: UID -> id, FN -> name, TITLE -> designation, ORG -> group_name,
// ADR locality (or X-CITY) -> city, BDAY -> birthdate, ANNIVERSARY -> anniversary,
// preferred TEL -> whatsapp_number, PHOTO (file name only) -> photo_file_name.
type VCardSource struct {
	// Path is a local file or an http(s) URL.
	Path    string
	User    string
	Pass    string
	Fetcher Fetcher
}

func (s VCardSource) Rows(ctx context.Context) ([]Row, error) {
	if s.Path == "" {
		return nil, errors.New(config.ErrSourcePathEmpty)
	}
	f, err := openLocation(ctx, s.Path, s.Fetcher, s.User, s.Pass)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readVCards(ctx, f)
}

func readVCards(ctx context.Context, r io.Reader) ([]Row, error) {
	dec := vcard.NewDecoder(r)
	var rows []Row

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A broken card cannot be resynchronized by the decoder.
			slog.Warn(config.MsgRowRejected,
				config.LogKeyComponent, config.CompRoster,
				config.LogKeyLine, n,
				config.LogKeyError, err)
			return rows, nil
		}
		rows = append(rows, Row{Line: n, Fields: cardFields(card)})
	}
	return rows, nil
}

func cardFields(card vcard.Card) map[string]string {
	fields := map[string]string{
		config.ColID:          card.Value(config.VCardUID),
		config.ColName:        card.Value(config.VCardFN),
		config.ColDesignation: card.Value(config.VCardTitle),
		config.ColBirthdate:   vcardDate(card.Value(config.VCardBDAY)),
		config.ColAnniversary: vcardDate(card.Value(config.VCardAnniversary)),
		config.ColPhone:       card.PreferredValue(config.VCardTel),
		config.ColCity:        card.Value(config.VCardXCity),
	}

	if org := card.Value(config.VCardOrg); org != "" {
		// ORG is "Organization;Unit;..."; the group is the first component.
		fields[config.ColGroupName] = strings.SplitN(org, ";", 2)[0]
	}
	if adr := card.Address(); adr != nil && adr.Locality != "" {
		fields[config.ColCity] = adr.Locality
	}
	if photo := card.Value(config.VCardPhoto); photo != "" && !strings.Contains(photo, ":") {
		fields[config.ColPhoto] = photo
	}
	return fields
}

// vcardDate rewrites the date forms of RFC 6350 (basic "19900314", year-less
// "--0314", timestamps) as YYYY-MM-DD. Year-less dates get config.UnknownYear.
// Values it does not recognize are returned unchanged so Parse reports them.
func vcardDate(value string) string {
	v := strings.TrimSpace(value)
	if i := strings.IndexByte(v, 'T'); i > 0 {
		v = v[:i]
	}

	for _, layout := range []string{config.DateLayout, config.VCardDateBasic} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(config.DateLayout)
		}
	}
	for _, layout := range []string{config.VCardDateNoYearExt, config.VCardDateNoYear} {
		// Parsed within a leap year so "--0229" is accepted.
		if t, err := time.Parse("2006"+layout, "2000"+v); err == nil {
			return time.Date(config.UnknownYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(config.DateLayout)
		}
	}
	return value
}
