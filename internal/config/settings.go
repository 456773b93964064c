package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// Point is an anchor position on a background template, in pixels.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Size is a width/height pair, in pixels.
type Size struct {
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// Geometry holds the fixed anchor regions of the greeting card layout.
type Geometry struct {
	Photo     Point `yaml:"photo"`
	PhotoSize Size  `yaml:"photo_size"`
	Name      Point `yaml:"name"`
	Title     Point `yaml:"designation"`
	GroupCity Point `yaml:"group_city"`
}

// RosterSettings selects and configures the roster source collaborator.
type RosterSettings struct {
	Source         string `yaml:"source"`
	Path           string `yaml:"path"`
	SheetID        string `yaml:"sheet_id"`
	Worksheet      string `yaml:"worksheet"`
	ServiceAccount string `yaml:"service_account_file"`
	// User and Pass authenticate remote (http/https) CSV or vCard exports.
	User string `yaml:"user"`
	Pass string `yaml:"-"`
}

// WhatsAppSettings configures the Cloud API client and the sender's pacing/retry policy.
type WhatsAppSettings struct {
	BaseURL       string        `yaml:"base_url"`
	APIVersion    string        `yaml:"api_version"`
	PhoneNumberID string        `yaml:"phone_number_id"`
	Token         string        `yaml:"-"`
	MinDelay      time.Duration `yaml:"min_delay"`
	RetryAttempts int           `yaml:"retry_attempts"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
}

// RenderSettings configures the artifact renderer.
type RenderSettings struct {
	TemplatesDir string   `yaml:"templates_dir"`
	PhotosDir    string   `yaml:"photos_dir"`
	OutputDir    string   `yaml:"output_dir"`
	FontsDir     string   `yaml:"fonts_dir"`
	BoldFont     string   `yaml:"bold_font"`
	RegularFont  string   `yaml:"regular_font"`
	NameSize     float64  `yaml:"name_size"`
	TextSize     float64  `yaml:"text_size"`
	JPEGQuality  int      `yaml:"jpeg_quality"`
	Language     string   `yaml:"language"`
	Geometry     Geometry `yaml:"geometry"`
}

// OutcomeSettings configures the persisted outcome log.
type OutcomeSettings struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RunSettings configures the dispatch pipeline and the daemon mode.
type RunSettings struct {
	LeapPolicy    string        `yaml:"leap_policy"`
	SoftDeadline  time.Duration `yaml:"soft_deadline"`
	RenderWorkers int           `yaml:"render_workers"`
	Schedule      string        `yaml:"schedule"`
	Timezone      string        `yaml:"timezone"`
	FeedPort      string        `yaml:"feed_port"`
}

// Settings is the explicit configuration handed to each component at construction.
type Settings struct {
	Roster   RosterSettings   `yaml:"roster"`
	WhatsApp WhatsAppSettings `yaml:"whatsapp"`
	Render   RenderSettings   `yaml:"render"`
	Outcome  OutcomeSettings  `yaml:"outcome_log"`
	Run      RunSettings      `yaml:"run"`
}

// ConfigurationError reports settings that make a run impossible.
// It is the only error class that aborts a whole run.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return ErrConfiguration + ": " + strings.Join(e.Problems, "; ")
}

// Defaults returns the settings of the original tool layout (templates/, photos/, output/).
func Defaults() Settings {
	return Settings{
		Roster: RosterSettings{
			Source:         SourceCSV,
			Path:           "members.csv",
			Worksheet:      DefaultWorksheet,
			ServiceAccount: DefaultSACredentials,
		},
		WhatsApp: WhatsAppSettings{
			BaseURL:       WhatsAppBaseURL,
			APIVersion:    WhatsAppAPIVersion,
			MinDelay:      DefaultMinSendDelay,
			RetryAttempts: DefaultRetryAttempts,
			BackoffBase:   DefaultBackoffBase,
			BackoffMax:    DefaultBackoffMax,
			HTTPTimeout:   HTTPTimeout,
		},
		Render: RenderSettings{
			TemplatesDir: DefaultTemplatesDir,
			PhotosDir:    DefaultPhotosDir,
			OutputDir:    DefaultOutputDir,
			FontsDir:     DefaultFontsDir,
			BoldFont:     DefaultBoldFont,
			RegularFont:  DefaultRegularFont,
			NameSize:     DefaultNameSize,
			TextSize:     DefaultTextSize,
			JPEGQuality:  DefaultJPEGQuality,
			Language:     DefaultLanguage,
			Geometry: Geometry{
				Photo:     Point{X: 80, Y: 260},
				PhotoSize: Size{W: 500, H: 500},
				Name:      Point{X: 650, Y: 320},
				Title:     Point{X: 650, Y: 410},
				GroupCity: Point{X: 650, Y: 490},
			},
		},
		Outcome: OutcomeSettings{
			Driver: DriverSQLite,
			DSN:    DefaultOutcomeDB,
		},
		Run: RunSettings{
			LeapPolicy:    LeapStrict,
			SoftDeadline:  DefaultSoftDeadline,
			RenderWorkers: DefaultRenderWorkers,
			Schedule:      DefaultCronSchedule,
			Timezone:      DefaultTimezone,
			FeedPort:      DefaultPort,
		},
	}
}

// Load builds the settings from defaults, an optional YAML file, the .env file and
// the process environment, in that order of precedence (last wins).
func Load(path string) (Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("%s: %w", ErrConfigRead, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("%s: %w", ErrConfigParse, err)
		}
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(EnvFileName); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return s, fmt.Errorf("%s: %w", ErrEnvLoad, err)
		}
		slog.Debug(MsgEnvMissing, LogKeyComponent, CompConfig)
	}

	s.ApplyEnv(os.LookupEnv)
	return s, nil
}

// ApplyEnv overlays the environment variables understood by the original tool.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("WHATSAPP_TOKEN", &s.WhatsApp.Token)
	str("WHATSAPP_PHONE_NUMBER_ID", &s.WhatsApp.PhoneNumberID)
	str("WHATSAPP_API_VERSION", &s.WhatsApp.APIVersion)
	str("GOOGLE_SHEET_ID", &s.Roster.SheetID)
	str("GOOGLE_SERVICE_ACCOUNT_FILE", &s.Roster.ServiceAccount)
	str("ROSTER_PATH", &s.Roster.Path)
	str("ROSTER_USER", &s.Roster.User)
	str("ROSTER_PASSWORD", &s.Roster.Pass)
	str("TEMPLATES_DIR", &s.Render.TemplatesDir)
	str("PHOTOS_DIR", &s.Render.PhotosDir)
	str("OUTPUT_DIR", &s.Render.OutputDir)
	str("FONTS_DIR", &s.Render.FontsDir)
	str("OUTCOME_LOG_DSN", &s.Outcome.DSN)

	if v, ok := lookup("SEND_MIN_DELAY_MS"); ok {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms >= 0 {
			s.WhatsApp.MinDelay = time.Duration(ms) * time.Millisecond
		}
	}
}

// Validate checks the settings needed for a run. Live runs additionally need
// channel credentials.
func (s Settings) Validate(live bool) error {
	var problems []string

	switch s.Roster.Source {
	case SourceCSV, SourceVCard:
		if s.Roster.Path == "" {
			problems = append(problems, ErrSourcePathEmpty)
		}
	case SourceSheets:
		if s.Roster.SheetID == "" {
			problems = append(problems, ErrSheetIDEmpty)
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: %q", ErrSourceUnsupport, s.Roster.Source))
	}

	if s.Run.LeapPolicy != LeapStrict && s.Run.LeapPolicy != LeapMarchFirst {
		problems = append(problems, fmt.Sprintf("%s: %q", ErrLeapPolicy, s.Run.LeapPolicy))
	}

	switch s.Outcome.Driver {
	case DriverSQLite, DriverPostgres:
		if s.Outcome.DSN == "" {
			problems = append(problems, ErrDSNEmpty)
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: %q", ErrDriverUnsupport, s.Outcome.Driver))
	}

	if _, err := time.LoadLocation(s.Run.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("%s: %q", ErrTimezone, s.Run.Timezone))
	}

	if live {
		if s.WhatsApp.Token == "" {
			problems = append(problems, ErrTokenEmpty)
		}
		if s.WhatsApp.PhoneNumberID == "" {
			problems = append(problems, ErrPhoneIDEmpty)
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// Location returns the configured timezone, falling back to the local zone.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Run.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
