package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
)

// Summary holds the aggregate counts of one run.
type Summary struct {
	Birthdays     int `json:"birthdays"`
	Anniversaries int `json:"anniversaries"`
	Sent          int `json:"sent"`
	Skipped       int `json:"skipped"`
	FailedRender  int `json:"failed_render"`
	FailedSend    int `json:"failed_send"`
	Ineligible    int `json:"ineligible"`
	DryRun        int `json:"dry_run"`
	Deferred      int `json:"deferred"`
}

// Failed is the number of render and send failures.
func (s Summary) Failed() int {
	return s.FailedRender + s.FailedSend
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int(config.KindBirthday, s.Birthdays),
		slog.Int(config.KindAnniversary, s.Anniversaries),
		slog.Int(string(outcome.Sent), s.Sent),
		slog.Int(string(outcome.SkippedAlreadySent), s.Skipped),
		slog.Int(string(outcome.FailedRender), s.FailedRender),
		slog.Int(string(outcome.FailedSend), s.FailedSend),
		slog.Int(string(outcome.Ineligible), s.Ineligible),
		slog.Int(string(outcome.DryRun), s.DryRun),
		slog.Int(config.LogKeyDeferred, s.Deferred),
	)
}

// Report is the observable result of one run.
type Report struct {
	RunID    string
	Date     string
	Mode     Mode
	Events   []engine.Event
	Outcomes []outcome.Outcome
	// Deferred events were not started before the soft deadline or a stop signal.
	Deferred []engine.Event
	Summary  Summary
	Started  time.Time
	Finished time.Time
}

func (r *Report) add(o outcome.Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case outcome.Sent:
		r.Summary.Sent++
	case outcome.SkippedAlreadySent:
		r.Summary.Skipped++
	case outcome.FailedRender:
		r.Summary.FailedRender++
	case outcome.FailedSend:
		r.Summary.FailedSend++
	case outcome.Ineligible:
		r.Summary.Ineligible++
	case outcome.DryRun:
		r.Summary.DryRun++
	}
}

func (r *Report) finish(at time.Time) {
	r.Finished = at
	r.Summary.Birthdays, r.Summary.Anniversaries = 0, 0
	for _, ev := range r.Events {
		if ev.Kind == engine.Anniversary {
			r.Summary.Anniversaries++
		} else {
			r.Summary.Birthdays++
		}
	}
	r.Summary.Deferred = len(r.Deferred)
}

// Failures lists the outcomes needing operator follow-up, in run order.
func (r *Report) Failures() []outcome.Outcome {
	var out []outcome.Outcome
	for _, o := range r.Outcomes {
		if o.Status.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// WriteSummary prints the run summary and itemizes every failure.
func (r *Report) WriteSummary(w io.Writer) error {
	s := r.Summary
	if _, err := fmt.Fprintf(w, config.FormatReportHeader, r.RunID, r.Mode, r.Date); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, config.FormatReportMatched, s.Birthdays, s.Anniversaries); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, config.FormatReportCounts,
		s.Sent, s.Skipped, s.Failed(), s.FailedRender, s.FailedSend, s.Ineligible, s.DryRun, s.Deferred); err != nil {
		return err
	}

	failures := r.Failures()
	if len(failures) == 0 && len(r.Deferred) == 0 {
		return nil
	}
	if _, err := fmt.Fprint(w, config.FormatReportFailHdr); err != nil {
		return err
	}
	for _, o := range failures {
		if _, err := fmt.Fprintf(w, config.FormatReportFailure, o.MemberID, o.Kind, o.Status, o.Detail); err != nil {
			return err
		}
	}
	for _, ev := range r.Deferred {
		if _, err := fmt.Fprintf(w, config.FormatReportFailure, ev.MemberID(), ev.Kind, config.LogKeyDeferred, config.DetailDeferred); err != nil {
			return err
		}
	}
	return nil
}
