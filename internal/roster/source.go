package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jsgian/go-wishes/internal/config"
)

// Source is the roster collaborator: it yields raw rows in sheet order.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
}

// Roster is the validated result of one load.
type Roster struct {
	Members  []Member
	Issues   []ValidationIssue
	Rejected []ValidationIssue
	Total    int
}

// Load reads every row of src and validates it. Only a failure of the source
// itself is returned as an error; bad rows end up in Issues or Rejected.
func Load(ctx context.Context, src Source) (*Roster, error) {
	rows, err := src.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrRosterRead, err)
	}

	log := slog.With(config.LogKeyComponent, config.CompRoster)
	r := &Roster{Total: len(rows)}
	seen := make(map[string]int, len(rows))

	for _, row := range rows {
		m, issues, err := Parse(row)
		if err != nil {
			var vi ValidationIssue
			if errors.As(err, &vi) {
				r.Rejected = append(r.Rejected, vi)
			}
			log.Warn(config.MsgRowRejected, config.LogKeyLine, row.Line, config.LogKeyError, err)
			continue
		}

		if first, dup := seen[m.ID]; dup {
			vi := ValidationIssue{
				Line:     row.Line,
				MemberID: m.ID,
				Field:    config.ColID,
				Value:    m.ID,
				Message:  fmt.Sprintf("%s (first seen on line %d)", config.ErrDuplicateID, first),
			}
			r.Rejected = append(r.Rejected, vi)
			log.Warn(config.MsgRowRejected, config.LogKeyLine, row.Line, config.LogKeyError, vi)
			continue
		}
		seen[m.ID] = row.Line

		for _, is := range issues {
			log.Debug(config.MsgRowIssue, config.LogKeyLine, row.Line, config.LogKeyError, is)
		}
		r.Issues = append(r.Issues, issues...)
		r.Members = append(r.Members, m)
	}

	log.Info(config.MsgRosterLoaded,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, r.Total),
			slog.Int(config.LogKeyMembers, len(r.Members)),
			slog.Int(config.LogKeyRejected, len(r.Rejected)),
			slog.Int(config.LogKeyIssues, len(r.Issues)),
		),
	)
	return r, nil
}

// rowsFromTable turns a header + records table (CSV, Sheets values) into rows.
// Header names are matched case-insensitively after trimming.
func rowsFromTable(header []string, records [][]string, firstLine int) ([]Row, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{config.ColID, config.ColName} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%s: %s", config.ErrRosterHeader, required)
		}
	}

	rows := make([]Row, 0, len(records))
	for n, rec := range records {
		fields := make(map[string]string, len(config.RosterColumns))
		for _, col := range config.RosterColumns {
			if i, ok := index[col]; ok && i < len(rec) {
				fields[col] = rec[i]
			}
		}
		rows = append(rows, Row{Line: firstLine + n, Fields: fields})
	}
	return rows, nil
}
