package outcome

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Timestamps are stored as fixed-width UTC text so they sort lexically in both dialects.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const (
	insertOutcome = `INSERT INTO dispatch_outcomes
		(run_id, member_id, kind, event_date, status, detail, message_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectDay = `SELECT run_id, member_id, kind, event_date, status, detail, message_id, recorded_at
		FROM dispatch_outcomes
		WHERE event_date = ?
		ORDER BY recorded_at`
)

// SQLStore keeps the Outcome Log in sqlite (default) or postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.OutcomeSettings) (*SQLStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return openSQLite(ctx, cfg.DSN)
	case config.DriverPostgres:
		db, err := sql.Open(config.DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrOutcomeOpen, err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", config.ErrOutcomeOpen, err)
		}
		return newStore(ctx, db, config.DriverPostgres)
	default:
		return nil, fmt.Errorf("%s: %q", config.ErrDriverUnsupport, cfg.Driver)
	}
}

func openSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s: %s", config.ErrOutcomeOpen, config.ErrDSNEmpty)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), config.DirPermUserRWX); err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrOutcomeOpen, err)
		}
	}

	db, err := sql.Open(config.DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrOutcomeOpen, err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = "+strconv.Itoa(config.SQLiteBusyMillis))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	return newStore(ctx, db, config.DriverSQLite)
}

// NewSQLStore wraps an existing connection and migrates it.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	return newStore(ctx, db, driver)
}

func newStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrOutcomeMigrate, err)
	}
	return s, nil
}

// Append writes one outcome. The write is complete when Append returns.
func (s *SQLStore) Append(ctx context.Context, o Outcome) error {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(insertOutcome),
		o.RunID, o.MemberID, string(o.Kind), o.Date, string(o.Status), o.Detail, o.MessageID,
		o.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrOutcomeAppend, err)
	}

	slog.Debug(config.MsgOutcome,
		config.LogKeyComponent, config.CompOutcome,
		config.LogKeyRunID, o.RunID,
		config.LogKeyMemberID, o.MemberID,
		config.LogKeyKind, string(o.Kind),
		config.LogKeyOutcome, string(o.Status),
	)
	return nil
}

// LoadDay reads the full log of date.
func (s *SQLStore) LoadDay(ctx context.Context, date string) (*Day, error) {
	outcomes, err := s.List(ctx, date)
	if err != nil {
		return nil, err
	}
	return NewDay(date, outcomes), nil
}

// List returns the outcomes recorded for date, oldest first.
func (s *SQLStore) List(ctx context.Context, date string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectDay), date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrOutcomeQuery, err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o            Outcome
			kind, status string
			recorded     string
		)
		if err := rows.Scan(&o.RunID, &o.MemberID, &kind, &o.Date, &status, &o.Detail, &o.MessageID, &recorded); err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrOutcomeQuery, err)
		}
		o.Kind = engine.Kind(kind)
		o.Status = Status(status)
		if ts, err := time.Parse(timestampLayout, recorded); err == nil {
			o.Timestamp = ts
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrOutcomeQuery, err)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
