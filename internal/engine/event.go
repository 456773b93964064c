package engine

import (
	"fmt"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/roster"
)

// Kind is the occasion being celebrated.
type Kind string

const (
	Birthday    Kind = config.KindBirthday
	Anniversary Kind = config.KindAnniversary
)

// Kinds lists every kind in dispatch order.
var Kinds = []Kind{Birthday, Anniversary}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// dateOf returns the member date relevant to the kind.
func (k Kind) dateOf(m roster.Member) roster.Date {
	if k == Anniversary {
		return m.Anniversary
	}
	return m.Birthdate
}

// Event is a qualifying occasion for one member on one day.
// It is derived fresh on each run and never stored.
type Event struct {
	Member roster.Member
	Kind   Kind
	// On is the day the event fires (the run date).
	On roster.Date
}

// MemberID is a shorthand for e.Member.ID.
func (e Event) MemberID() string {
	return e.Member.ID
}
