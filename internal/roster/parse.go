package roster

import (
	"strings"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
)

// Row is one raw roster row keyed by column name.
type Row struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of a column, "" when absent.
func (r Row) Get(col string) string {
	return strings.TrimSpace(r.Fields[col])
}

// Parse validates one row. A returned error means the row is rejected (it lacks
// an identity field); everything else is reported as issues on an otherwise
// usable member.
func Parse(row Row) (Member, []ValidationIssue, error) {
	m := Member{
		ID:          row.Get(config.ColID),
		Name:        row.Get(config.ColName),
		Designation: row.Get(config.ColDesignation),
		GroupName:   row.Get(config.ColGroupName),
		City:        row.Get(config.ColCity),
		Photo:       row.Get(config.ColPhoto),
		Line:        row.Line,
	}

	if m.ID == "" {
		return Member{}, nil, ValidationIssue{Line: row.Line, Field: config.ColID, Message: config.ErrMissingID}
	}
	if m.Name == "" {
		return Member{}, nil, ValidationIssue{Line: row.Line, MemberID: m.ID, Field: config.ColName, Message: config.ErrMissingName}
	}

	var issues []ValidationIssue
	issue := func(field, value, msg string) {
		issues = append(issues, ValidationIssue{Line: row.Line, MemberID: m.ID, Field: field, Value: value, Message: msg})
	}

	for _, f := range []struct {
		col string
		dst *Date
	}{
		{config.ColBirthdate, &m.Birthdate},
		{config.ColAnniversary, &m.Anniversary},
	} {
		raw := row.Get(f.col)
		if raw == "" {
			continue
		}
		d, ok := ParseDate(raw)
		if !ok {
			issue(f.col, raw, config.ErrDateFormat)
			continue
		}
		*f.dst = d
	}

	rawPhone := row.Get(config.ColPhone)
	m.Phone = NormalizePhone(rawPhone)
	switch {
	case rawPhone == "":
		issue(config.ColPhone, rawPhone, config.ErrPhoneMissing)
	case !ValidPhone(m.Phone):
		issue(config.ColPhone, rawPhone, config.ErrPhoneFormat)
	}

	return m, issues, nil
}

// ParseDate accepts YYYY-MM-DD only.
func ParseDate(value string) (Date, bool) {
	t, err := time.Parse(config.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, false
	}
	return DateOf(t), true
}

// NormalizePhone strips common separators. Other characters are kept so that
// ValidPhone rejects them instead of silently dropping them.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(config.PhoneStripChars, r) {
			return -1
		}
		return r
	}, raw)
}

// ValidPhone reports whether phone is 10 to 15 ASCII digits.
func ValidPhone(phone string) bool {
	if len(phone) < config.PhoneMinDigits || len(phone) > config.PhoneMaxDigits {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
