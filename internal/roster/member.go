package roster

import (
	"fmt"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
)

// Date is a calendar date without time of day. The zero value means "absent".
// The year is kept for display and validation only; matching uses month and day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// IsZero reports whether the date is absent.
func (d Date) IsZero() bool {
	return d.Month == 0
}

// HasYear is false for dates imported without a year (vCard "--MMDD").
func (d Date) HasYear() bool {
	return d.Year != config.UnknownYear
}

// YearsIn returns the number of years completed in year y, or 0 when the
// year of d is unknown or not yet reached.
func (d Date) YearsIn(y int) int {
	if !d.HasYear() || y < d.Year {
		return 0
	}
	return y - d.Year
}

// String formats the date as YYYY-MM-DD, or "" when absent.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Member is one validated roster entry.
type Member struct {
	ID          string
	Name        string
	Designation string
	GroupName   string
	City        string
	Birthdate   Date
	Anniversary Date
	// Phone is the normalized number, digits only. It may be set but ineligible.
	Phone string
	// Photo is a file name relative to the photos directory, or "".
	Photo string
	// Line is the 1-based position of the row in its source, for reporting.
	Line int
}

// Eligible reports whether the member can receive a message.
func (m Member) Eligible() bool {
	return ValidPhone(m.Phone)
}

// IneligibleReason explains why Eligible is false, or returns "".
func (m Member) IneligibleReason() string {
	switch {
	case m.Phone == "":
		return config.ErrPhoneMissing
	case !ValidPhone(m.Phone):
		return fmt.Sprintf("%s: %q", config.ErrPhoneFormat, m.Phone)
	default:
		return ""
	}
}

// ValidationIssue is a non-fatal problem found in one roster row.
type ValidationIssue struct {
	Line     int
	MemberID string
	Field    string
	Value    string
	Message  string
}

func (v ValidationIssue) Error() string {
	if v.MemberID != "" {
		return fmt.Sprintf("line %d (id %s) %s %q: %s", v.Line, v.MemberID, v.Field, v.Value, v.Message)
	}
	return fmt.Sprintf("line %d %s %q: %s", v.Line, v.Field, v.Value, v.Message)
}
