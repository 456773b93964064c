package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/jsgian/go-wishes/internal/config"
)

// CSVSource reads the roster from a CSV export of the member sheet.
type CSVSource struct {
	// Path is a local file or an http(s) URL.
	Path    string
	User    string
	Pass    string
	Fetcher Fetcher
}

func (s CSVSource) Rows(ctx context.Context) ([]Row, error) {
	if s.Path == "" {
		return nil, errors.New(config.ErrSourcePathEmpty)
	}
	f, err := openLocation(ctx, s.Path, s.Fetcher, s.User, s.Pass)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readCSV(ctx, f)
}

func readCSV(ctx context.Context, r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	// Excel's "CSV UTF-8" export starts with a byte order mark.
	header[0] = strings.TrimPrefix(header[0], config.UTF8BOM)

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	// Line 1 is the header.
	return rowsFromTable(header, records, 2)
}
