package outcome_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*outcome.SQLStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "outcomes.db")
	s, err := outcome.Open(context.Background(), config.OutcomeSettings{Driver: config.DriverSQLite, DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLite_AppendAndLoadDay(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	base := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

	records := []outcome.Outcome{
		{RunID: "r1", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-14", Status: outcome.Sent, MessageID: "wamid.1", Timestamp: base},
		{RunID: "r1", MemberID: "8", Kind: engine.Birthday, Date: "2024-03-14", Status: outcome.FailedSend, Detail: "auth", Timestamp: base.Add(time.Second)},
		{RunID: "r1", MemberID: "9", Kind: engine.Anniversary, Date: "2024-03-14", Status: outcome.DryRun, Timestamp: base.Add(2 * time.Second)},
		{RunID: "r1", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-15", Status: outcome.Sent, Timestamp: base.Add(24 * time.Hour)},
	}
	for _, o := range records {
		require.NoError(t, s.Append(ctx, o))
	}

	day, err := s.LoadDay(ctx, "2024-03-14")
	require.NoError(t, err)
	require.Len(t, day.Outcomes, 3)
	assert.Equal(t, records[0], day.Outcomes[0], "Round trip must preserve every field")
	assert.Equal(t, "8", day.Outcomes[1].MemberID)

	sent, ok := day.AlreadySent("7", engine.Birthday)
	assert.True(t, ok)
	assert.Equal(t, "wamid.1", sent.MessageID)

	_, ok = day.AlreadySent("7", engine.Anniversary)
	assert.False(t, ok, "Kinds are independent")
	_, ok = day.AlreadySent("8", engine.Birthday)
	assert.False(t, ok, "A failed send must be retried on the next run")
	_, ok = day.AlreadySent("9", engine.Anniversary)
	assert.False(t, ok, "A dry run never blocks a live run")
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.Append(ctx, outcome.Outcome{
		RunID: "r1", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-14", Status: outcome.Sent,
	}))
	require.NoError(t, s.Close())

	reopened, err := outcome.Open(ctx, config.OutcomeSettings{Driver: config.DriverSQLite, DSN: path})
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(ctx, "2024-03-14")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Timestamp.IsZero(), "Missing timestamps are filled on append")
}

func TestSQLite_EmptyDay(t *testing.T) {
	s, _ := openTemp(t)
	day, err := s.LoadDay(context.Background(), "2030-01-01")
	require.NoError(t, err)
	assert.Empty(t, day.Outcomes)
}

func TestOpen_Errors(t *testing.T) {
	_, err := outcome.Open(context.Background(), config.OutcomeSettings{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, config.ErrDriverUnsupport)

	_, err = outcome.Open(context.Background(), config.OutcomeSettings{Driver: config.DriverSQLite})
	assert.ErrorContains(t, err, config.ErrOutcomeOpen)
}

func TestDay_Record(t *testing.T) {
	day := outcome.NewDay("2024-03-14", nil)

	day.Record(outcome.Outcome{MemberID: "1", Kind: engine.Birthday, Status: outcome.Ineligible})
	_, ok := day.AlreadySent("1", engine.Birthday)
	assert.False(t, ok)

	day.Record(outcome.Outcome{MemberID: "1", Kind: engine.Birthday, Status: outcome.SkippedAlreadySent, RunID: "r2"})
	day.Record(outcome.Outcome{MemberID: "1", Kind: engine.Birthday, Status: outcome.Sent, RunID: "r1"})
	o, ok := day.AlreadySent("1", engine.Birthday)
	require.True(t, ok)
	assert.Equal(t, "r1", o.RunID, "The send itself is the reference, not a later skip")
	assert.Len(t, day.Outcomes, 3)
}

func TestStatus(t *testing.T) {
	for _, s := range outcome.Statuses {
		assert.Equal(t, s == outcome.Sent || s == outcome.SkippedAlreadySent, s.Blocks(), string(s))
	}
	assert.True(t, outcome.FailedRender.Failed())
	assert.True(t, outcome.Ineligible.Failed())
	assert.False(t, outcome.DryRun.Failed())
}

// --- postgres dialect, checked against sqlmock ---

func setupMockStore(t *testing.T) (*outcome.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS dispatch_outcomes`).WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := outcome.NewSQLStore(context.Background(), db, config.DriverPostgres)
	require.NoError(t, err)
	return s, mock
}

func TestPostgres_AppendUsesNumberedPlaceholders(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec(`(?s)INSERT INTO dispatch_outcomes.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WithArgs("r1", "7", "birthday", "2024-03-14", "sent", "", "wamid.1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Append(context.Background(), outcome.Outcome{
		RunID: "r1", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-14",
		Status: outcome.Sent, MessageID: "wamid.1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadDay(t *testing.T) {
	s, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"run_id", "member_id", "kind", "event_date", "status", "detail", "message_id", "recorded_at"}).
		AddRow("r1", "7", "birthday", "2024-03-14", "sent", "", "wamid.1", "2024-03-14T09:00:00.000000000Z")
	mock.ExpectQuery(`(?s)SELECT .* FROM dispatch_outcomes.*WHERE event_date = \$1`).
		WithArgs("2024-03-14").
		WillReturnRows(rows)

	day, err := s.LoadDay(context.Background(), "2024-03-14")
	require.NoError(t, err)
	o, ok := day.AlreadySent("7", engine.Birthday)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), o.Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendFailure(t *testing.T) {
	s, mock := setupMockStore(t)
	mock.ExpectExec(`INSERT INTO dispatch_outcomes`).WillReturnError(errors.New("connection reset"))

	err := s.Append(context.Background(), outcome.Outcome{RunID: "r1", MemberID: "7", Kind: engine.Birthday, Status: outcome.Sent})
	assert.ErrorContains(t, err, config.ErrOutcomeAppend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err = outcome.NewSQLStore(context.Background(), db, config.DriverPostgres)
	assert.ErrorContains(t, err, config.ErrOutcomeMigrate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
