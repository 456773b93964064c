package roster_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func row(line int, kv ...string) roster.Row {
	fields := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return roster.Row{Line: line, Fields: fields}
}

// -----------------------------------------------------------------------------
// Parse
// -----------------------------------------------------------------------------

func TestParse_ValidRow(t *testing.T) {
	m, issues, err := roster.Parse(row(2,
		"id", "7", "name", " Asha ", "birthdate", "1990-03-14",
		"whatsapp_number", "+91 98765-43210", "group_name", "JSG Pune", "city", "Pune",
	))

	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "7", m.ID)
	assert.Equal(t, "Asha", m.Name)
	assert.Equal(t, roster.Date{Year: 1990, Month: time.March, Day: 14}, m.Birthdate)
	assert.True(t, m.Anniversary.IsZero())
	assert.Equal(t, "919876543210", m.Phone)
	assert.True(t, m.Eligible())
	assert.Empty(t, m.IneligibleReason())
}

func TestParse_RejectsMissingIdentity(t *testing.T) {
	tests := []struct {
		name  string
		row   roster.Row
		field string
	}{
		{"no id", row(3, "name", "Asha"), config.ColID},
		{"no name", row(4, "id", "9"), config.ColName},
		{"blank name", row(5, "id", "9", "name", "   "), config.ColName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := roster.Parse(tt.row)
			require.Error(t, err)

			var vi roster.ValidationIssue
			require.True(t, errors.As(err, &vi))
			assert.Equal(t, tt.field, vi.Field)
			assert.Equal(t, tt.row.Line, vi.Line)
		})
	}
}

func TestParse_BadDatesBecomeAbsent(t *testing.T) {
	m, issues, err := roster.Parse(row(2,
		"id", "1", "name", "Ravi", "birthdate", "14/03/1990", "anniversary", "2010-02-30",
		"whatsapp_number", "919876543210",
	))

	require.NoError(t, err, "A bad date must never reject the row")
	assert.True(t, m.Birthdate.IsZero())
	assert.True(t, m.Anniversary.IsZero())
	require.Len(t, issues, 2)
	assert.Equal(t, config.ColBirthdate, issues[0].Field)
	assert.Equal(t, config.ColAnniversary, issues[1].Field)
	assert.Equal(t, config.ErrDateFormat, issues[0].Message)
}

func TestParse_PhoneEligibility(t *testing.T) {
	tests := []struct {
		raw      string
		eligible bool
	}{
		{"12345", false},
		{"", false},
		{"9876543210", true},
		{"919876543210", true},
		{"(022) 555-0100-12", true},
		{"1234567890123456", false},
		{"98765abc10", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			m, issues, err := roster.Parse(row(2, "id", "1", "name", "X", "whatsapp_number", tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, m.Eligible())
			if tt.eligible {
				assert.Empty(t, issues)
			} else {
				assert.Len(t, issues, 1)
				assert.NotEmpty(t, m.IneligibleReason())
			}
		})
	}
}

func TestParseDate_OnlyISO(t *testing.T) {
	for _, bad := range []string{"1990/03/14", "14-03-1990", "March 14, 1990", "19900314", "--03-14"} {
		_, ok := roster.ParseDate(bad)
		assert.False(t, ok, "%q must not be guessed", bad)
	}
	d, ok := roster.ParseDate("2000-02-29")
	assert.True(t, ok)
	assert.Equal(t, "2000-02-29", d.String())
}

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

type staticSource []roster.Row

func (s staticSource) Rows(context.Context) ([]roster.Row, error) { return s, nil }

type failingSource struct{}

func (failingSource) Rows(context.Context) ([]roster.Row, error) { return nil, errors.New("boom") }

func TestLoad_CollectsRejectsAndDuplicates(t *testing.T) {
	src := staticSource{
		row(2, "id", "1", "name", "A", "whatsapp_number", "9876543210"),
		row(3, "name", "No Id"),
		row(4, "id", "1", "name", "Duplicate"),
		row(5, "id", "2", "name", "B", "birthdate", "bad"),
	}

	r, err := roster.Load(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 4, r.Total)
	require.Len(t, r.Members, 2)
	assert.Equal(t, "1", r.Members[0].ID)
	assert.Equal(t, "2", r.Members[1].ID, "Insertion order must be preserved")
	assert.Len(t, r.Rejected, 2)
	assert.Contains(t, r.Rejected[1].Message, config.ErrDuplicateID)
	// member 2: bad birthdate + missing phone
	assert.Len(t, r.Issues, 2)
}

func TestLoad_SourceFailure(t *testing.T) {
	_, err := roster.Load(context.Background(), failingSource{})
	assert.ErrorContains(t, err, config.ErrRosterRead)
}

// -----------------------------------------------------------------------------
// CSV & vCard sources
// -----------------------------------------------------------------------------

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCSVSource_Rows(t *testing.T) {
	csv := "id,name,designation,birthdate,anniversary,whatsapp_number,group_name,city,photo_file_name\n" +
		"7,Asha,President,1990-03-14,,919876543210,JSG Pune,Pune,asha.jpg\n" +
		"8,Ravi,,,2001-11-02,9876543210,,,\n"

	rows, err := roster.CSVSource{Path: writeFile(t, "members.csv", csv)}.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "Asha", rows[0].Get(config.ColName))
	assert.Equal(t, "asha.jpg", rows[0].Get(config.ColPhoto))
	assert.Equal(t, "2001-11-02", rows[1].Get(config.ColAnniversary))
}

func TestCSVSource_ByteOrderMark(t *testing.T) {
	csv := "\ufeffid,name,birthdate\n7,Asha,1990-03-14\n"

	rows, err := roster.CSVSource{Path: writeFile(t, "excel.csv", csv)}.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "7", rows[0].Get(config.ColID))
}

func TestCSVSource_HeaderWithoutIdentityColumns(t *testing.T) {
	_, err := roster.CSVSource{Path: writeFile(t, "bad.csv", "name,city\nA,B\n")}.Rows(context.Background())
	assert.ErrorContains(t, err, config.ErrRosterHeader)
}

func TestCSVSource_ShortRecords(t *testing.T) {
	rows, err := roster.CSVSource{Path: writeFile(t, "short.csv", "id,name,city\n1,A\n")}.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Get(config.ColCity))
}

func TestVCardSource_Rows(t *testing.T) {
	vcf := `BEGIN:VCARD
VERSION:4.0
UID:7
FN:Asha Shah
TITLE:President
ORG:JSG Pune;Ladies Wing
ADR:;;12 MG Road;Pune;MH;411001;India
TEL;TYPE=cell:+91 98765 43210
BDAY:1990-03-14
ANNIVERSARY:2015-12-01
PHOTO:asha.jpg
END:VCARD
BEGIN:VCARD
VERSION:4.0
UID:8
FN:Ravi
X-CITY:Nashik
END:VCARD
`
	r, err := roster.Load(context.Background(), roster.VCardSource{Path: writeFile(t, "members.vcf", vcf)})
	require.NoError(t, err)
	require.Len(t, r.Members, 2)

	asha := r.Members[0]
	assert.Equal(t, "7", asha.ID)
	assert.Equal(t, "Asha Shah", asha.Name)
	assert.Equal(t, "President", asha.Designation)
	assert.Equal(t, "JSG Pune", asha.GroupName)
	assert.Equal(t, "Pune", asha.City)
	assert.Equal(t, "919876543210", asha.Phone)
	assert.Equal(t, "1990-03-14", asha.Birthdate.String())
	assert.Equal(t, "2015-12-01", asha.Anniversary.String())
	assert.Equal(t, "asha.jpg", asha.Photo)

	assert.Equal(t, "Nashik", r.Members[1].City)
	assert.False(t, r.Members[1].Eligible())
}

func TestVCardSource_DateForms(t *testing.T) {
	vcf := `BEGIN:VCARD
VERSION:4.0
UID:7
FN:Asha
BDAY:19900314
ANNIVERSARY:20151201
END:VCARD
BEGIN:VCARD
VERSION:4.0
UID:8
FN:Ravi
BDAY:--0229
ANNIVERSARY:2010-06-20T00:00:00Z
END:VCARD
BEGIN:VCARD
VERSION:4.0
UID:9
FN:Meena
BDAY:--03-14
ANNIVERSARY;VALUE=text:circa 1990
END:VCARD
`
	r, err := roster.Load(context.Background(), roster.VCardSource{Path: writeFile(t, "dates.vcf", vcf)})
	require.NoError(t, err)
	require.Len(t, r.Members, 3)

	assert.Equal(t, "1990-03-14", r.Members[0].Birthdate.String())
	assert.Equal(t, "2015-12-01", r.Members[0].Anniversary.String())

	ravi := r.Members[1]
	assert.Equal(t, time.February, ravi.Birthdate.Month)
	assert.Equal(t, 29, ravi.Birthdate.Day)
	assert.False(t, ravi.Birthdate.HasYear())
	assert.Equal(t, 0, ravi.Birthdate.YearsIn(2028))
	assert.Equal(t, "2010-06-20", ravi.Anniversary.String())

	meena := r.Members[2]
	assert.Equal(t, time.March, meena.Birthdate.Month)
	assert.Equal(t, 14, meena.Birthdate.Day)
	assert.True(t, meena.Anniversary.IsZero())

	// Only the free-text anniversary is reported.
	var fields []string
	for _, issue := range r.Issues {
		fields = append(fields, issue.Field)
	}
	assert.Contains(t, fields, config.ColAnniversary)
	assert.NotContains(t, fields, config.ColBirthdate)
}

// -----------------------------------------------------------------------------
// Google Sheets source
// -----------------------------------------------------------------------------

func TestSheetSource_Rows(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/sheet-1/values/JSG Members", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range": "'JSG Members'!A1:I3",
			"values": [][]string{
				{"id", "name", "birthdate", "whatsapp_number"},
				{"7", "Asha", "1990-03-14", "919876543210"},
			},
		})
	}))
	defer ts.Close()

	src := roster.NewSheetSourceWithTokens(context.Background(), "sheet-1", config.DefaultWorksheet,
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}))
	src.BaseURL = ts.URL

	rows, err := src.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Asha", rows[0].Get(config.ColName))
	assert.Equal(t, 2, rows[0].Line)
}

func TestSheetSource_FallsBackToFirstSheet(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/Members") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]string{{"id", "name"}, {"1", "A"}, {"2", "B"}},
		})
	}))
	defer ts.Close()

	src := &roster.SheetSource{SheetID: "s", Worksheet: "Members", BaseURL: ts.URL, Client: ts.Client()}
	rows, err := src.Rows(context.Background())

	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, []string{"/s/values/Members", "/s/values/" + config.FallbackSheetRange}, paths)
}

func TestSheetSource_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	src := &roster.SheetSource{SheetID: "s", Worksheet: "Members", BaseURL: ts.URL, Client: ts.Client()}
	_, err := src.Rows(context.Background())
	assert.ErrorContains(t, err, "403")
}
