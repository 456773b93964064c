package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func serve(h http.Handler, method, target string, headers map[string]string) *http.Response {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func openStore(t *testing.T) outcome.Store {
	t.Helper()
	s, err := outcome.Open(context.Background(), config.OutcomeSettings{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "outcomes.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type brokenStore struct {
	outcome.Store
}

func (brokenStore) List(context.Context, string) ([]outcome.Outcome, error) {
	return nil, errors.New("disk I/O error")
}

// -----------------------------------------------------------------------------
// Calendar Feed
// -----------------------------------------------------------------------------

// TestCalendar_ServingContent verifies headers and body when data is available.
func TestCalendar_ServingContent(t *testing.T) {
	srv := NewFeedServer("0", nil)
	expectedICS := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR")
	srv.Update(expectedICS)

	resp := serve(srv.Routes(), http.MethodGet, config.RouteCalendar, nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.MimeTextCalendar, resp.Header.Get(config.HeaderContentType))
	assert.Equal(t, config.MimeNoSniff, resp.Header.Get(config.HeaderXContentType))
	assert.Contains(t, resp.Header.Get(config.HeaderCacheControl), "no-cache")
	assert.NotEmpty(t, resp.Header.Get(config.HeaderETag))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, expectedICS, body)
}

// TestCalendar_Caching verifies If-None-Match and If-Modified-Since answer 304.
func TestCalendar_Caching(t *testing.T) {
	srv := NewFeedServer("0", nil)
	srv.Update([]byte("DATA_VERSION_1"))
	h := srv.Routes()

	first := serve(h, http.MethodGet, config.RouteCalendar, nil)
	etag := first.Header.Get(config.HeaderETag)
	lastMod := first.Header.Get(config.HeaderLastModified)
	_ = first.Body.Close()
	require.NotEmpty(t, etag, "Server must provide an ETag")

	byTag := serve(h, http.MethodGet, config.RouteCalendar, map[string]string{config.HeaderIfNoneMatch: etag})
	defer func() { _ = byTag.Body.Close() }()
	assert.Equal(t, http.StatusNotModified, byTag.StatusCode)
	body, _ := io.ReadAll(byTag.Body)
	assert.Empty(t, body, "Body must be empty on 304 Not Modified")

	byDate := serve(h, http.MethodGet, config.RouteCalendar, map[string]string{config.HeaderIfModifiedSince: lastMod})
	defer func() { _ = byDate.Body.Close() }()
	assert.Equal(t, http.StatusNotModified, byDate.StatusCode)

	// A new roster changes the tag.
	srv.Update([]byte("DATA_VERSION_2"))
	changed := serve(h, http.MethodGet, config.RouteCalendar, map[string]string{config.HeaderIfNoneMatch: etag})
	defer func() { _ = changed.Body.Close() }()
	assert.Equal(t, http.StatusOK, changed.StatusCode)
}

// TestCalendar_Head answers headers without a body.
func TestCalendar_Head(t *testing.T) {
	srv := NewFeedServer("0", nil)
	srv.Update([]byte("BEGIN:VCALENDAR"))

	resp := serve(srv.Routes(), http.MethodHead, config.RouteCalendar, nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(config.HeaderETag))
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)
}

// TestCalendar_MethodNotAllowed ensures only GET and HEAD are accepted.
func TestCalendar_MethodNotAllowed(t *testing.T) {
	srv := NewFeedServer("0", nil)
	resp := serve(srv.Routes(), http.MethodPost, config.RouteCalendar, nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestCalendar_Initializing verifies the 503 behavior when data is not yet ready.
func TestCalendar_Initializing(t *testing.T) {
	srv := NewFeedServer("0", nil)

	resp := serve(srv.Routes(), http.MethodGet, config.RouteCalendar, nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, config.RetryAfterSeconds, resp.Header.Get(config.HeaderRetryAfter))
}

// -----------------------------------------------------------------------------
// Outcome Log
// -----------------------------------------------------------------------------

func TestOutcomes_ListsDay(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, o := range []outcome.Outcome{
		{RunID: "r1", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-14", Status: outcome.Sent, MessageID: "wamid.1"},
		{RunID: "r1", MemberID: "9", Kind: engine.Birthday, Date: "2024-03-14", Status: outcome.Ineligible},
		{RunID: "r2", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-14", Status: outcome.SkippedAlreadySent},
		{RunID: "r3", MemberID: "7", Kind: engine.Birthday, Date: "2024-03-15", Status: outcome.DryRun},
	} {
		require.NoError(t, store.Append(ctx, o))
	}

	srv := NewFeedServer("0", store)
	resp := serve(srv.Routes(), http.MethodGet, config.RouteOutcomes+"?"+config.QueryDate+"=2024-03-14", nil)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.MimeJSON, resp.Header.Get(config.HeaderContentType))

	var body outcomesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "2024-03-14", body.Date)
	require.Len(t, body.Outcomes, 3)
	assert.Equal(t, "wamid.1", body.Outcomes[0].MessageID)
	assert.Equal(t, 1, body.Counts[outcome.Sent])
	assert.Equal(t, 1, body.Counts[outcome.SkippedAlreadySent])
	assert.Equal(t, 1, body.Counts[outcome.Ineligible])
}

func TestOutcomes_DefaultsToToday(t *testing.T) {
	srv := NewFeedServer("0", openStore(t))
	srv.Clock = engine.FixedClock{At: time.Date(2024, 3, 13, 20, 0, 0, 0, time.UTC)}
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	srv.Location = kolkata

	resp := serve(srv.Routes(), http.MethodGet, config.RouteOutcomes, nil)
	defer func() { _ = resp.Body.Close() }()

	var body outcomesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "2024-03-14", body.Date, "Today is taken in the configured timezone")
	assert.NotNil(t, body.Outcomes)
	assert.Empty(t, body.Outcomes)
}

func TestOutcomes_Errors(t *testing.T) {
	tests := []struct {
		name   string
		store  outcome.Store
		query  string
		status int
	}{
		{"no store", nil, "", http.StatusServiceUnavailable},
		{"bad date", openStore(t), "?date=14-03-2024", http.StatusBadRequest},
		{"impossible date", openStore(t), "?date=2023-02-29", http.StatusBadRequest},
		{"store failure", brokenStore{}, "?date=2024-03-14", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewFeedServer("0", tt.store)
			resp := serve(srv.Routes(), http.MethodGet, config.RouteOutcomes+tt.query, nil)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHealth(t *testing.T) {
	resp := serve(NewFeedServer("0", nil).Routes(), http.MethodGet, config.RouteHealth, nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, config.HTTPMsgOK, string(body))
}

// -----------------------------------------------------------------------------
// Concurrency Tests (Race Detection)
// -----------------------------------------------------------------------------

// TestServer_RaceCondition runs writers and readers of the atomic cache concurrently.
// Run this with `go test -race`.
func TestServer_RaceCondition(t *testing.T) {
	srv := NewFeedServer("0", nil)
	h := srv.Routes()
	var wg sync.WaitGroup

	end := time.Now().Add(300 * time.Millisecond)

	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; time.Now().Before(end); i++ {
				srv.Update([]byte(fmt.Sprintf("VERSION:%d-%d", id, i)))
				time.Sleep(time.Microsecond)
			}
		}(w)
	}

	for r := 0; r < 20; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				resp := serve(h, http.MethodGet, config.RouteCalendar, nil)
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
					t.Errorf("Unexpected status code during race test: %d", resp.StatusCode)
				}
			}
		}()
	}

	wg.Wait()
}

// -----------------------------------------------------------------------------
// Integration Tests (Real TCP Lifecycle)
// -----------------------------------------------------------------------------

// TestServer_Lifecycle binds a real listener and checks graceful shutdown.
func TestServer_Lifecycle(t *testing.T) {
	const port = "18099"

	srv := NewFeedServer(port, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- srv.Start(ctx)
	}()

	url := "http://127.0.0.1:" + port + config.RouteCalendar

	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 50*time.Millisecond, "Server failed to bind/listen in time")

	resp, err := http.Get(url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()

	srv.Update([]byte("BEGIN:VCALENDAR\nEND:VCALENDAR"))

	resp, err = http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")

	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err, "Server should shutdown gracefully without error")
	case <-time.After(5 * time.Second):
		t.Fatal("Server shutdown timed out")
	}
}

func TestServer_PortRequired(t *testing.T) {
	err := NewFeedServer("", nil).Start(context.Background())
	assert.EqualError(t, err, config.ErrPortRequired)
}
