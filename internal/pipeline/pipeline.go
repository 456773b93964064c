package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
	"github.com/jsgian/go-wishes/internal/render"
	"github.com/jsgian/go-wishes/internal/roster"
)

// Mode selects between real dispatch and preview.
type Mode string

const (
	Live   Mode = config.ModeLive
	DryRun Mode = config.ModeDryRun
)

// Renderer produces the artifact of one event. *render.Renderer implements it.
type Renderer interface {
	Render(m roster.Member, kind engine.Kind) (*render.Artifact, error)
}

// Sender delivers an artifact. *channel.Sender implements it.
type Sender interface {
	Send(ctx context.Context, phone string, art *render.Artifact) (string, error)
}

// Pipeline runs matcher, renderer and sender over a roster for one day.
type Pipeline struct {
	Matcher  engine.Matcher
	Renderer Renderer
	// Sender may be nil for dry runs.
	Sender Sender
	Store  outcome.Store
	Clock  engine.Clock

	// SoftDeadline bounds a run; remaining events are deferred once it passes. Zero disables it.
	SoftDeadline time.Duration
	// RenderWorkers > 1 pre-renders artifacts in parallel before dispatch.
	RenderWorkers int
	// SendGrace bounds an in-flight send once the run is cancelled.
	SendGrace time.Duration
}

// Run processes every event of today, sequentially and in matcher order, and
// appends each outcome to the Store before moving on. Per-member failures are
// recorded, not returned; the error is reserved for a run that cannot proceed
// (no sender for a live run, unreadable or unwritable Outcome Log).
func (p *Pipeline) Run(ctx context.Context, members []roster.Member, today time.Time, mode Mode) (*Report, error) {
	if mode == Live && p.Sender == nil {
		return nil, errors.New(config.ErrNoSender)
	}
	clock := p.Clock
	if clock == nil {
		clock = engine.RealClock{}
	}

	started := clock.Now()
	date := roster.DateOf(today).String()
	report := &Report{
		RunID:   uuid.NewString(),
		Date:    date,
		Mode:    mode,
		Started: started,
	}

	events := p.Matcher.Match(members, today)
	report.Events = events

	// The whole day is read before the first write so the skip check sees every earlier run.
	day, err := p.Store.LoadDay(ctx, date)
	if err != nil {
		return report, err
	}

	slog.Info(config.MsgRunStarted,
		config.LogKeyComponent, config.CompPipeline,
		config.LogKeyRunID, report.RunID,
		config.LogKeyDate, date,
		config.LogKeyMode, string(mode),
		config.LogKeyEvents, len(events),
	)

	rendered := p.prerender(ctx, events, day)

	for i, ev := range events {
		if stop := p.stopReason(ctx, started, clock); stop != nil {
			report.Deferred = append(report.Deferred, events[i:]...)
			slog.Warn(config.MsgRunDeferred,
				config.LogKeyComponent, config.CompPipeline,
				config.LogKeyRunID, report.RunID,
				config.LogKeyDeferred, len(report.Deferred),
				config.LogKeyError, stop,
			)
			break
		}

		o := p.process(ctx, report.RunID, ev, day, mode, rendered[i])
		o.Timestamp = clock.Now()

		// The outcome is persisted even if the run was cancelled during the send.
		if err := p.Store.Append(context.WithoutCancel(ctx), o); err != nil {
			report.finish(clock.Now())
			return report, err
		}
		day.Record(o)
		report.add(o)
		logOutcome(o)
	}

	report.finish(clock.Now())
	slog.Info(config.MsgRunFinished,
		config.LogKeyComponent, config.CompPipeline,
		config.LogKeyRunID, report.RunID,
		config.LogKeyStats, report.Summary.LogValue(),
		config.LogKeyDuration, report.Finished.Sub(report.Started).Milliseconds(),
	)
	return report, nil
}

// stopReason returns why no further event may start, or nil.
func (p *Pipeline) stopReason(ctx context.Context, started time.Time, clock engine.Clock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.SoftDeadline > 0 && clock.Now().Sub(started) >= p.SoftDeadline {
		return context.DeadlineExceeded
	}
	return nil
}

// process applies the per-event steps: skip, eligibility, render, then preview or send.
func (p *Pipeline) process(ctx context.Context, runID string, ev engine.Event, day *outcome.Day, mode Mode, pre *rendered) outcome.Outcome {
	o := outcome.Outcome{
		RunID:    runID,
		MemberID: ev.MemberID(),
		Kind:     ev.Kind,
		Date:     ev.On.String(),
	}
	m := ev.Member

	if prev, ok := day.AlreadySent(m.ID, ev.Kind); ok {
		o.Status = outcome.SkippedAlreadySent
		o.Detail = fmt.Sprintf(config.FormatSkipDetail, prev.RunID)
		o.MessageID = prev.MessageID
		return o
	}

	if !m.Eligible() {
		o.Status = outcome.Ineligible
		o.Detail = m.IneligibleReason()
		return o
	}

	var (
		art *render.Artifact
		err error
	)
	if pre != nil {
		art, err = pre.art, pre.err
	} else {
		art, err = p.Renderer.Render(m, ev.Kind)
	}
	if err != nil {
		o.Status = outcome.FailedRender
		o.Detail = err.Error()
		return o
	}

	if mode == DryRun {
		o.Status = outcome.DryRun
		o.Detail = fmt.Sprintf(config.FormatDryRunDetail, ev.Kind, m.Phone, captionPreview(art.Caption))
		if art.Degraded {
			o.Detail += config.DetailPlaceholder
		}
		return o
	}

	grace := p.SendGrace
	if grace <= 0 {
		grace = config.SendGraceTimeout
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()

	id, err := p.Sender.Send(sendCtx, m.Phone, art)
	if err != nil {
		o.Status = outcome.FailedSend
		o.Detail = err.Error()
		return o
	}
	o.Status = outcome.Sent
	o.MessageID = id
	return o
}

// captionPreview flattens the caption to one line of at most CaptionPreviewLength runes.
func captionPreview(caption string) string {
	s := strings.Join(strings.Fields(caption), " ")
	if utf8.RuneCountInString(s) <= config.CaptionPreviewLength {
		return s
	}
	r := []rune(s)
	return string(r[:config.CaptionPreviewLength]) + config.CaptionPreviewEllipse
}

func logOutcome(o outcome.Outcome) {
	level := slog.LevelInfo
	if o.Status.Failed() {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, config.MsgOutcome,
		config.LogKeyComponent, config.CompPipeline,
		config.LogKeyRunID, o.RunID,
		config.LogKeyMemberID, o.MemberID,
		config.LogKeyKind, string(o.Kind),
		config.LogKeyOutcome, string(o.Status),
		config.LogKeyDetail, o.Detail,
	)
}
