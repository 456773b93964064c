package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/jsgian/go-wishes/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// errRangeNotFound is returned by the Sheets API (HTTP 400) when the worksheet does not exist.
var errRangeNotFound = errors.New("range not found")

// SheetSource reads the roster from a Google Sheet through the Sheets v4 values API.
type SheetSource struct {
	SheetID   string
	Worksheet string
	BaseURL   string
	Client    *http.Client
}

// NewSheetSource authenticates with a service-account JSON file (read-only scope).
func NewSheetSource(ctx context.Context, sheetID, worksheet, credentialsFile string) (*SheetSource, error) {
	if sheetID == "" {
		return nil, errors.New(config.ErrSheetIDEmpty)
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrConfiguration, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, config.SheetsScopeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrConfiguration, err)
	}
	return NewSheetSourceWithTokens(ctx, sheetID, worksheet, creds.TokenSource), nil
}

// NewSheetSourceWithTokens builds a source from any oauth2 token source.
func NewSheetSourceWithTokens(ctx context.Context, sheetID, worksheet string, ts oauth2.TokenSource) *SheetSource {
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = config.HTTPTimeout
	return &SheetSource{
		SheetID:   sheetID,
		Worksheet: worksheet,
		BaseURL:   config.SheetsBaseURL,
		Client:    client,
	}
}

type valueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// Rows fetches the configured worksheet, falling back to the first sheet when
// the worksheet name is unknown to the spreadsheet.
func (s *SheetSource) Rows(ctx context.Context) ([]Row, error) {
	rng := s.Worksheet
	if rng == "" {
		rng = config.FallbackSheetRange
	}
	vr, err := s.fetch(ctx, rng)
	if errors.Is(err, errRangeNotFound) && rng != config.FallbackSheetRange {
		slog.Warn(config.MsgSheetFallback,
			config.LogKeyComponent, config.CompRoster,
			config.LogKeySource, s.Worksheet)
		vr, err = s.fetch(ctx, config.FallbackSheetRange)
	}
	if err != nil {
		return nil, err
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	return rowsFromTable(vr.Values[0], vr.Values[1:], 2)
}

func (s *SheetSource) fetch(ctx context.Context, rng string) (*valueRange, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s", s.BaseURL, url.PathEscape(s.SheetID), url.PathEscape(rng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error during sheet fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxHTTPResponseSize))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, errRangeNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("sheets api returned unexpected status: %d", resp.StatusCode)
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrAPIResponse, err)
	}
	return &vr, nil
}
