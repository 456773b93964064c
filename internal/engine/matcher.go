package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/roster"
)

// LeapPolicy decides when a Feb 29 date fires in a non-leap year.
type LeapPolicy string

const (
	// LeapStrict fires Feb 29 dates only on Feb 29. No double-firing is possible.
	LeapStrict LeapPolicy = config.LeapStrict
	// LeapMarchFirst fires Feb 29 dates on Mar 1 of non-leap years.
	LeapMarchFirst LeapPolicy = config.LeapMarchFirst
)

// ParseLeapPolicy validates a policy name.
func ParseLeapPolicy(s string) (LeapPolicy, error) {
	switch LeapPolicy(s) {
	case LeapStrict, LeapMarchFirst:
		return LeapPolicy(s), nil
	default:
		return "", fmt.Errorf("%s: %q", config.ErrLeapPolicy, s)
	}
}

// Matcher finds the members with an occasion on a given day.
type Matcher struct {
	Leap LeapPolicy
}

// Match returns the events firing on today, in roster order, birthday before
// anniversary for the same member. Members without a valid date for a kind are
// never matched for that kind. Dispatch eligibility is not considered here.
func (m Matcher) Match(members []roster.Member, today time.Time) []Event {
	day := roster.DateOf(today)
	var events []Event
	stats := map[Kind]int{}

	for _, member := range members {
		for _, kind := range Kinds {
			if !m.occursOn(kind.dateOf(member), day) {
				continue
			}
			events = append(events, Event{Member: member, Kind: kind, On: day})
			stats[kind]++
		}
	}

	slog.Info(config.MsgEventsMatched,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyDate, day.String(),
		slog.Group(config.LogKeyStats,
			slog.Int(config.KindBirthday, stats[Birthday]),
			slog.Int(config.KindAnniversary, stats[Anniversary]),
		),
	)
	return events
}

// occursOn compares month and day only; the stored year never matters.
func (m Matcher) occursOn(d, day roster.Date) bool {
	if d.IsZero() {
		return false
	}
	if d.Month == day.Month && d.Day == day.Day {
		return true
	}
	return m.Leap == LeapMarchFirst &&
		d.Month == time.February && d.Day == 29 &&
		day.Month == time.March && day.Day == 1 &&
		!isLeap(day.Year)
}

// occurrenceIn projects d onto year y. ok is false when the date does not occur
// that year (Feb 29 in a non-leap year under LeapStrict).
func (m Matcher) occurrenceIn(y int, d roster.Date, loc *time.Location) (time.Time, bool) {
	if d.Month == time.February && d.Day == 29 && !isLeap(y) {
		if m.Leap != LeapMarchFirst {
			return time.Time{}, false
		}
		return time.Date(y, time.March, 1, 0, 0, 0, 0, loc), true
	}
	return time.Date(y, d.Month, d.Day, 0, 0, 0, 0, loc), true
}

// NextOccurrence returns the next day (today included) on which d fires and the
// number of years completed on that day. Used for the calendar feed ordering.
func (m Matcher) NextOccurrence(now time.Time, d roster.Date) (time.Time, int) {
	loc := now.Location()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	// A strict Feb 29 can be up to four years away.
	for y := now.Year(); y <= now.Year()+4; y++ {
		candidate, ok := m.occurrenceIn(y, d, loc)
		if !ok || candidate.Before(todayStart) {
			continue
		}
		return candidate, d.YearsIn(y)
	}
	return time.Time{}, 0
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
