package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP clients (WhatsApp Cloud API, Sheets API).
var UserAgent = "Go-Wishes/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName           = "Go Wishes"
	AppID             = "com.github.jsgian.go-wishes"
	KeyringService    = "com.github.jsgian.go-wishes"
	KeyringUser       = "whatsapp-token"
	LocalhostBindAddr = "127.0.0.1"
	LogFileName       = "app.log"
	EnvFileName       = ".env"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeUsage   = 2
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for sensitive files like logs.
	FilePermUserRW fs.FileMode = 0600

	// FilePermShared represents -rw-r--r--. Used for rendered greeting images.
	FilePermShared fs.FileMode = 0644

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// DirPermShared represents drwxr-xr-x. Used for output and template directories.
	DirPermShared fs.FileMode = 0755

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Flags, Commands & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagVersion    = "version"
	FlagDebug      = "debug"
	FlagConfig     = "config"
	FlagDryRun     = "dry-run"
	FlagDate       = "date"
	FlagDaemon     = "daemon"
	FlagStoreToken = "store-token"

	FlagDescVersion    = "Show application version and exit"
	FlagDescDebug      = "Enable debug logging to stdout"
	FlagDescConfig     = "Path to a YAML settings file"
	FlagDescDryRun     = "Match and render, but do not send any message"
	FlagDescDate       = "Run as if today were this date (YYYY-MM-DD)"
	FlagDescDaemon     = "Stay running: dispatch on the cron schedule and serve the feed"
	FlagDescStoreToken = "Read the WhatsApp token from stdin and store it in the OS keyring"

	CmdRun           = "run"
	CmdMakeTemplates = "make-templates"
	CmdRenderSample  = "render-sample"
	CmdHistory       = "history"

	MsgVersionOutput = "%s version %s (commit %s, built %s, %s/%s)\n"
	MsgCreated       = "created %s\n"
	MsgSampleWritten = "sample %s artifact for %s written to %s\n"
	FormatHistory    = "%s  %-12s %-12s %-22s %s\n"
	FormatIssue      = "warning: %v\n"
	MsgUsage         = "usage: go-wishes [flags] [run|make-templates|render-sample|history]\n"
)

// -----------------------------------------------------------------------------
// Roster Columns
// -----------------------------------------------------------------------------

// Column names of the roster sheet. Order matches the sheet header.
const (
	ColID          = "id"
	ColName        = "name"
	ColDesignation = "designation"
	ColBirthdate   = "birthdate"
	ColAnniversary = "anniversary"
	ColPhone       = "whatsapp_number"
	ColGroupName   = "group_name"
	ColCity        = "city"
	ColPhoto       = "photo_file_name"
)

// RosterColumns lists every column the roster source must expose.
var RosterColumns = []string{
	ColID, ColName, ColDesignation, ColBirthdate, ColAnniversary,
	ColPhone, ColGroupName, ColCity, ColPhoto,
}

// -----------------------------------------------------------------------------
// Roster Sources
// -----------------------------------------------------------------------------

const (
	SourceCSV    = "csv"
	SourceVCard  = "vcard"
	SourceSheets = "sheets"

	DefaultWorksheet     = "JSG Members"
	FallbackSheetRange   = "A:I"
	SheetsBaseURL        = "https://sheets.googleapis.com/v4/spreadsheets"
	SheetsScopeReadOnly  = "https://www.googleapis.com/auth/spreadsheets.readonly"
	DefaultSACredentials = "google-service-account.json"

	// vCard extension fields used when the roster is exported from an address book.
	VCardAnniversary = "ANNIVERSARY"
	VCardBDAY        = "BDAY"
	VCardFN          = "FN"
	VCardUID         = "UID"
	VCardTitle       = "TITLE"
	VCardOrg         = "ORG"
	VCardTel         = "TEL"
	VCardPhoto       = "PHOTO"
	VCardXCity       = "X-CITY"
)

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

const (
	DateLayout     = "2006-01-02"
	PhoneMinDigits = 10
	PhoneMaxDigits = 15

	// PhoneStripChars are separators removed while normalizing a phone number.
	PhoneStripChars = " +-().\t"

	UTF8BOM = "\ufeff"

	// Date layouts found in vCard BDAY and ANNIVERSARY values (RFC 6350 §4.3.1).
	// A time part ("T...") is dropped before these are tried.
	VCardDateBasic     = "20060102"
	VCardDateNoYearExt = "--01-02"
	VCardDateNoYear    = "--0102"

	// UnknownYear stands in for the year of a vCard date that has none. It is a
	// leap year so "--0229" survives, and old enough to never be a real date.
	UnknownYear = 1604
)

// -----------------------------------------------------------------------------
// Matcher
// -----------------------------------------------------------------------------

const (
	// LeapStrict fires a Feb 29 date only on Feb 29.
	LeapStrict = "strict"
	// LeapMarchFirst fires a Feb 29 date on Mar 1 in non-leap years.
	LeapMarchFirst = "mar1"

	KindBirthday    = "birthday"
	KindAnniversary = "anniversary"
)

// -----------------------------------------------------------------------------
// Rendering
// -----------------------------------------------------------------------------

const (
	TemplateFileFormat = "%s_template.png"
	OutputFileFormat   = "%s_%s.jpg"
	MimeJPEG           = "image/jpeg"
	DefaultJPEGQuality = 90

	DefaultTemplatesDir = "templates"
	DefaultPhotosDir    = "photos"
	DefaultOutputDir    = "output"
	DefaultFontsDir     = "fonts"
	DefaultBoldFont     = "Montserrat-Bold.ttf"
	DefaultRegularFont  = "Montserrat-Regular.ttf"
	DefaultNameSize     = 48
	DefaultTextSize     = 34
	FontDPI             = 72

	// Placeholder templates (make-templates).
	TemplateWidth  = 1200
	TemplateHeight = 800
	TemplateLabelY = 50

	GroupCitySeparator = ", "

	// Sample member of the render-sample command.
	SampleMemberID    = "sample"
	SampleMemberName  = "Sample Member"
	SampleDesignation = "Committee Member"
	SampleGroupName   = "JSG Sample Group"
	SampleCity        = "Mumbai"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyCaptionBirthday    = "caption_birthday"    // Requires Name, Designation, GroupCity
	TKeyCaptionAnniversary = "caption_anniversary" // Requires Name, Designation, GroupCity
	TKeyTemplateLabel      = "template_label"      // Requires Kind

	// Calendar feed summaries.
	TKeyEvtBirthday      = "event_summary_birthday"          // Requires Name
	TKeyEvtBirthdayYears = "event_summary_birthday_years"    // Requires Name, Years
	TKeyEvtAnniversary   = "event_summary_anniversary"       // Requires Name
	TKeyEvtAnnivYears    = "event_summary_anniversary_years" // Requires Name, Years

	DefaultLanguage = "en"
)

// SupportedLanguages defines the list of available caption languages (ISO 639-1).
var SupportedLanguages = []string{"en", "hi"}

// -----------------------------------------------------------------------------
// Channel (WhatsApp Cloud API)
// -----------------------------------------------------------------------------

const (
	WhatsAppBaseURL      = "https://graph.facebook.com"
	WhatsAppAPIVersion   = "v21.0"
	WhatsAppProduct      = "whatsapp"
	WhatsAppTypeImage    = "image"
	WhatsAppRecipient    = "individual"
	WhatsAppMediaPath    = "%s/%s/%s/media"
	WhatsAppMessagesPath = "%s/%s/%s/messages"
	FormFieldFile        = "file"
	FormFieldType        = "type"
	FormFieldProduct     = "messaging_product"

	// Graph API error codes that are never worth retrying.
	GraphCodeAuth              = 190
	GraphCodeInvalidParam      = 100
	GraphCodeRecipientNotValid = 131026
	GraphCodeRecipientNotAllow = 131030
	GraphCodeMediaTooLarge     = 131052
	// Graph API throttling codes.
	GraphCodeRateLimit     = 4
	GraphCodeUserRateLimit = 80007
	GraphCodeSpamRateLimit = 131056

	DefaultMinSendDelay   = 1 * time.Second
	DefaultRetryAttempts  = 4
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	MaxMediaBytes         = 5 * 1024 * 1024
	MaxAPIResponseSize    = 1 * 1024 * 1024
	CaptionPreviewLength  = 80
	CaptionPreviewEllipse = "…"
)

// -----------------------------------------------------------------------------
// Outcome Log
// -----------------------------------------------------------------------------

const (
	DriverSQLite     = "sqlite"
	DriverPostgres   = "postgres"
	DefaultOutcomeDB = "data/outcomes.db"
	SQLiteBusyMillis = 5000
)

// -----------------------------------------------------------------------------
// Pipeline & Scheduling
// -----------------------------------------------------------------------------

const (
	DefaultSoftDeadline  = 20 * time.Minute
	DefaultRenderWorkers = 4
	DefaultCronSchedule  = "0 9 * * *"
	DefaultTimezone      = "Asia/Kolkata"
	DefaultPort          = "18080"
	SendGraceTimeout     = 2 * time.Minute
)

// -----------------------------------------------------------------------------
// Run Report
// -----------------------------------------------------------------------------

const (
	ModeLive   = "live"
	ModeDryRun = "dry_run"

	FormatDryRunDetail = "would send %s to %s: %s"
	FormatSkipDetail   = "already sent by run %s"
	DetailPlaceholder  = " (placeholder photo)"
	DetailDeferred     = "deferred to next run"

	FormatReportHeader  = "Run %s (%s) for %s\n"
	FormatReportMatched = "Matched: %d birthdays, %d anniversaries\n"
	FormatReportCounts  = "Sent: %d  Skipped: %d  Failed: %d (render %d, send %d)  Ineligible: %d  Dry-run: %d  Deferred: %d\n"
	FormatReportFailHdr = "Failures:\n"
	FormatReportFailure = "  - %s %s %s: %s\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	RetryAfterSeconds   = "10"
	MaxHTTPResponseSize = 16 * 1024 * 1024
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
	AddrSeparator       = ":"

	RouteCalendar = "/calendar.ics"
	RouteOutcomes = "/outcomes"
	RouteHealth   = "/healthz"
	QueryDate     = "date"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType     = "Content-Type"
	HeaderAuthorization   = "Authorization"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"

	BearerPrefix        = "Bearer "
	MimeJSON            = "application/json"
	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeTextPlain       = "text/plain; charset=utf-8"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// -----------------------------------------------------------------------------
// Standards: iCalendar
// -----------------------------------------------------------------------------

const (
	ICalVersion  = "2.0"
	ICalProdid   = "-//Go Wishes//Engine//EN"
	ICalCalName  = "Member Occasions"
	ICalMethod   = "PUBLISH"
	ICalScale    = "GREGORIAN"
	ICalDomain   = "gowishes"
	UIDSalt      = "go-wishes-v1-"
	UIDHashLen   = 16
	FormatUID    = "%s-%s@%s"
	FormatHashIn = "%s|%s|%s"

	PropUID        = "UID"
	PropSummary    = "SUMMARY"
	PropDTStart    = "DTSTART"
	PropDTStamp    = "DTSTAMP"
	PropVersion    = "VERSION"
	PropProdid     = "PRODID"
	PropXWRCalName = "X-WR-CALNAME"
	PropCalScale   = "CALSCALE"
	PropMethod     = "METHOD"

	DefaultICalRefresh = 1 * time.Hour
	PropRefresh        = "REFRESH-INTERVAL"

	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrConfiguration    = "configuration error"
	ErrConfigRead       = "failed to read settings file"
	ErrConfigParse      = "failed to parse settings file"
	ErrEnvLoad          = "failed to load env file"
	ErrSourceUnsupport  = "unsupported roster source"
	ErrSourcePathEmpty  = "roster path is empty"
	ErrSheetIDEmpty     = "google sheet id is empty"
	ErrTokenEmpty       = "whatsapp token is not configured"
	ErrPhoneIDEmpty     = "whatsapp phone number id is not configured"
	ErrLeapPolicy       = "unknown leap policy"
	ErrDriverUnsupport  = "unsupported outcome log driver"
	ErrDSNEmpty         = "outcome log dsn is empty"
	ErrTimezone         = "unknown timezone"
	ErrSchedule         = "invalid cron schedule"
	ErrTemplateMissing  = "background template missing"
	ErrTemplateDecode   = "background template unreadable"
	ErrFontLoad         = "failed to load font"
	ErrRender           = "render failed"
	ErrEncode           = "image encoding failed"
	ErrWriteOutput      = "failed to write rendered image"
	ErrRosterRead       = "failed to read roster"
	ErrRosterHeader     = "roster header is missing required columns"
	ErrMissingID        = "missing member id"
	ErrMissingName      = "missing member name"
	ErrDuplicateID      = "duplicate member id"
	ErrDateFormat       = "date is not YYYY-MM-DD"
	ErrPhoneFormat      = "phone must be 10-15 digits"
	ErrPhoneMissing     = "phone is missing"
	ErrAPIResponse      = "unexpected api response"
	ErrOutcomeOpen      = "failed to open outcome log"
	ErrOutcomeMigrate   = "failed to migrate outcome log"
	ErrOutcomeAppend    = "failed to append outcome"
	ErrOutcomeQuery     = "failed to query outcome log"
	ErrInvalidURL       = "invalid URL structure"
	ErrProtocol         = "unsupported protocol scheme (http/https only)"
	ErrServerStartup    = "server startup failed"
	ErrServerShutdown   = "server shutdown failed"
	ErrPortRequired     = "server port is required"
	ErrWriteResp        = "failed to write response body"
	ErrLogFile          = "failed to open log file"
	ErrCacheDir         = "could not determine user cache dir"
	ErrCreateDir        = "could not create app cache dir"
	ErrAppFailed        = "application failed unexpectedly"
	ErrLocalesAccess    = "failed to access embedded locales"
	ErrLocaleLoad       = "failed to load locale file"
	ErrKeyringSave      = "failed to store token in keyring"
	ErrNoPhotoAvailable = "no photo found for sample render"
	ErrNoSender         = "live run requested without a channel sender"
	ErrUnknownCommand   = "unknown command"
)

// -----------------------------------------------------------------------------
// HTTP Server Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgInitializing = "Calendar initializing, please try again shortly."
	HTTPMsgBadDate      = "date must be YYYY-MM-DD"
	HTTPMsgInternalErr  = "Internal Server Error"
	HTTPMsgOK           = "ok"
)

// -----------------------------------------------------------------------------
// Fallbacks & Log Messages
// -----------------------------------------------------------------------------

const (
	FallbackCaptionBirthday    = "Happy Birthday JSGian %s ji 🎉\n%s – %s\n\nWarm wishes from JSG."
	FallbackCaptionAnniversary = "Happy Anniversary to %s ji 💐\n%s – %s\n\nWarm wishes from JSG."
	FallbackTemplateLabel      = "%s Template"

	MsgAppStarting     = "Starting application"
	MsgAppStop         = "Application stopped gracefully"
	MsgRosterLoaded    = "Roster loaded"
	MsgRowRejected     = "Roster row rejected"
	MsgRowIssue        = "Roster row has a validation issue"
	MsgEventsMatched   = "Events matched"
	MsgRunStarted      = "Dispatch run started"
	MsgRunFinished     = "Dispatch run finished"
	MsgRunDeferred     = "Run stopped early, remaining events deferred"
	MsgOutcome         = "Outcome recorded"
	MsgPhotoFallback   = "Photo unavailable, using placeholder"
	MsgFontFallback    = "Font unavailable, using built-in face"
	MsgRendered        = "Artifact rendered"
	MsgRetrying        = "Transient channel error, retrying"
	MsgUploaded        = "Media uploaded"
	MsgSent            = "Message sent"
	MsgTemplateCreated = "Template created"
	MsgTemplateExists  = "Template exists"
	MsgWorkerStart     = "Scheduler started"
	MsgWorkerStop      = "Scheduler stopping due to context cancellation"
	MsgJobTriggered    = "Scheduled run triggered"
	MsgJobFailed       = "Scheduled run failed"
	MsgJobBusy         = "Previous run still in progress, trigger ignored"
	MsgServerListen    = "HTTP server listening"
	MsgServerStop      = "Shutting down HTTP server..."
	MsgCacheUpdated    = "Calendar cache updated"
	MsgHTTPRequest     = "HTTP request"
	MsgLocaleSkip      = "Skipping non-locale file"
	MsgLocaleBadName   = "Skipping malformed locale filename"
	MsgLocaleLoaded    = "Locale loaded successfully"
	MsgTransMissing    = "Missing translation key"
	MsgTokenMissing    = "Token not found in keyring"
	MsgTokenStored     = "Token stored in keyring"
	MsgEnvMissing      = "No env file found, using process environment"
	MsgLogWarning      = "Warning: %s at %s: %v\n"
	MsgSheetFallback   = "Worksheet not found, falling back to first sheet"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyPort      = "port"
	LogKeyMode      = "mode"
	LogKeyRunID     = "run_id"
	LogKeyDate      = "date"
	LogKeyMemberID  = "member_id"
	LogKeyKind      = "kind"
	LogKeyOutcome   = "outcome"
	LogKeyDetail    = "detail"
	LogKeyLine      = "line"
	LogKeyAttempt   = "attempt"
	LogKeyBackoff   = "backoff"
	LogKeyMediaID   = "media_id"
	LogKeyMessageID = "message_id"
	LogKeySource    = "source"
	LogKeySchedule  = "schedule"
	LogKeyTotal     = "total_rows"
	LogKeyMembers   = "members"
	LogKeyRejected  = "rejected"
	LogKeyIssues    = "issues"
	LogKeyEvents    = "events"
	LogKeyDeferred  = "deferred"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyStats     = "stats"
	LogKeyDuration  = "duration_ms"
	LogKeyWorkers   = "workers"
	LogKeyTimezone  = "timezone"
	LogKeyManual    = "manual"
	LogKeyNext      = "next_run"
	LogKeyMethod    = "method"
	LogKeyPath      = "path"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain     = "main"
	CompConfig   = "config"
	CompRoster   = "roster"
	CompEngine   = "engine"
	CompRender   = "render"
	CompI18n     = "i18n"
	CompPipeline = "pipeline"
	CompChannel  = "channel"
	CompOutcome  = "outcome"
	CompServer   = "server"
	CompWorker   = "worker"
)
