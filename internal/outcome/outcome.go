package outcome

import (
	"context"
	"time"

	"github.com/jsgian/go-wishes/internal/engine"
)

// Status is the terminal result of one event in one run.
type Status string

const (
	Sent               Status = "sent"
	SkippedAlreadySent Status = "skipped_already_sent"
	FailedRender       Status = "failed_render"
	FailedSend         Status = "failed_send"
	Ineligible         Status = "ineligible"
	DryRun             Status = "dry_run"
)

// Statuses lists every status in summary order.
var Statuses = []Status{Sent, SkippedAlreadySent, FailedRender, FailedSend, Ineligible, DryRun}

// Blocks reports whether an earlier outcome with this status means the event
// must not be sent again the same day.
func (s Status) Blocks() bool {
	return s == Sent || s == SkippedAlreadySent
}

// Failed reports whether the status needs operator follow-up.
func (s Status) Failed() bool {
	return s == FailedRender || s == FailedSend || s == Ineligible
}

// Outcome is one immutable record of the Outcome Log.
type Outcome struct {
	RunID     string      `json:"run_id"`
	MemberID  string      `json:"member_id"`
	Kind      engine.Kind `json:"kind"`
	Date      string      `json:"date"`
	Status    Status      `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Store is the append-only persisted history of outcomes.
type Store interface {
	// Append persists o before returning.
	Append(ctx context.Context, o Outcome) error
	// LoadDay reads every outcome recorded for date (YYYY-MM-DD).
	LoadDay(ctx context.Context, date string) (*Day, error)
	// List returns the outcomes for date in recording order.
	List(ctx context.Context, date string) ([]Outcome, error)
	Close() error
}

type eventKey struct {
	memberID string
	kind     engine.Kind
}

// Day is the in-memory view of one date's log used for the skip-if-already-sent check.
type Day struct {
	Date     string
	Outcomes []Outcome
	sent     map[eventKey]Outcome
}

// NewDay indexes outcomes of a single date.
func NewDay(date string, outcomes []Outcome) *Day {
	d := &Day{Date: date, sent: make(map[eventKey]Outcome)}
	for _, o := range outcomes {
		d.Record(o)
	}
	return d
}

// Record adds an outcome appended during the current run.
func (d *Day) Record(o Outcome) {
	d.Outcomes = append(d.Outcomes, o)
	if o.Status == Sent {
		d.sent[eventKey{o.MemberID, o.Kind}] = o
		return
	}
	// A skip only exists because of an earlier send, which stays the reference.
	if o.Status.Blocks() {
		k := eventKey{o.MemberID, o.Kind}
		if _, ok := d.sent[k]; !ok {
			d.sent[k] = o
		}
	}
}

// AlreadySent returns the blocking outcome for (memberID, kind), if any.
func (d *Day) AlreadySent(memberID string, kind engine.Kind) (Outcome, bool) {
	o, ok := d.sent[eventKey{memberID, kind}]
	return o, ok
}
