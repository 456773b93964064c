package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/roster"
)

// CalendarBuilder renders the roster's occasions as an iCalendar feed so the
// organizers can see upcoming wishes in their calendar app.
type CalendarBuilder struct {
	Clock   Clock
	Matcher Matcher

	// FormatSummary allows the caller to inject localized event titles.
	// years is the anniversary count (age for birthdays), 0 when unknown.
	FormatSummary func(name string, kind Kind, years int) string
}

// Build returns the encoded calendar. Events are generated for the previous,
// current and next year so scrolling in a client works without a re-sync.
func (b *CalendarBuilder) Build(ctx context.Context, members []roster.Member) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	// Local time decides which day it is; UTC is only used for stamping.
	now := b.Clock.Now()
	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(now.UTC())

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, kind := range Kinds {
			d := kind.dateOf(m)
			if d.IsZero() {
				continue
			}
			for _, e := range b.createEvents(m, kind, d, now) {
				e.Props.Set(dtStampProp)
				cal.Children = append(cal.Children, e.Component)
			}
		}
	}

	// Clients flag an empty VCALENDAR as invalid; serve the stub instead.
	if len(cal.Children) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode iCalendar data: %w", err)
	}

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyEvents, len(cal.Children),
	)
	return buf.Bytes(), nil
}

func (b *CalendarBuilder) createEvents(m roster.Member, kind Kind, d roster.Date, now time.Time) []*ical.Event {
	// Deterministic UID base so clients keep their per-event state across refreshes.
	input := fmt.Sprintf(config.FormatHashIn, m.ID, kind, config.UIDSalt)
	hash := sha256.Sum256([]byte(input))
	uidBase := fmt.Sprintf("%x", hash[:config.UIDHashLen])

	var events []*ical.Event
	for _, y := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		// Not before the date itself (a wedding planned for next year, say).
		if d.HasYear() && y < d.Year {
			continue
		}
		occ, ok := b.Matcher.occurrenceIn(y, d, now.Location())
		if !ok {
			continue
		}

		event := ical.NewEvent()
		event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, uidBase, fmt.Sprint(y), config.ICalDomain))
		event.Props.SetText(config.PropSummary, b.summary(m.Name, kind, d.YearsIn(y)))

		dtStart := ical.NewProp(config.PropDTStart)
		dtStart.SetDate(occ)
		event.Props.Set(dtStart)

		events = append(events, event)
	}
	return events
}

func (b *CalendarBuilder) summary(name string, kind Kind, years int) string {
	if b.FormatSummary != nil {
		return b.FormatSummary(name, kind, years)
	}
	title := strings.ToUpper(string(kind[:1])) + string(kind[1:])
	if years > 0 {
		return fmt.Sprintf("%s: %s (%d)", title, name, years)
	}
	return fmt.Sprintf("%s: %s", title, name)
}
