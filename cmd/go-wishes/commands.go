package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jsgian/go-wishes/internal/channel"
	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
	"github.com/jsgian/go-wishes/internal/pipeline"
	"github.com/jsgian/go-wishes/internal/render"
	"github.com/jsgian/go-wishes/internal/roster"
	"github.com/jsgian/go-wishes/internal/server"
	"github.com/jsgian/go-wishes/internal/worker"
	"golang.org/x/sync/errgroup"
)

// app wires the components from one set of settings.
type app struct {
	settings config.Settings
	out      io.Writer
	clock    engine.Clock
}

func (a *app) now() time.Time {
	return a.clock.Now().In(a.settings.Location())
}

// day resolves the -date flag, or today in the configured timezone.
func (a *app) day(value string) (time.Time, error) {
	if value == "" {
		return a.now(), nil
	}
	t, err := time.ParseInLocation(config.DateLayout, value, a.settings.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q", config.ErrDateFormat, value)
	}
	return t, nil
}

func (a *app) source(ctx context.Context) (roster.Source, error) {
	r := a.settings.Roster
	switch r.Source {
	case config.SourceVCard:
		return roster.VCardSource{Path: r.Path, User: r.User, Pass: r.Pass}, nil
	case config.SourceSheets:
		return roster.NewSheetSource(ctx, r.SheetID, r.Worksheet, r.ServiceAccount)
	default:
		return roster.CSVSource{Path: r.Path, User: r.User, Pass: r.Pass}, nil
	}
}

func (a *app) loadRoster(ctx context.Context, src roster.Source) (*roster.Roster, error) {
	r, err := roster.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	for _, issue := range r.Rejected {
		_, _ = fmt.Fprintf(a.out, config.FormatIssue, issue)
	}
	return r, nil
}

// dispatcher holds the long-lived components of one or more runs.
type dispatcher struct {
	pipeline *pipeline.Pipeline
	captions *render.Captioner
	store    *outcome.SQLStore
	source   roster.Source
}

func (d *dispatcher) Close() error {
	return d.store.Close()
}

// newDispatcher validates the settings and builds every component. Any
// ConfigurationError surfaces here, before a roster row is read or an outcome written.
func (a *app) newDispatcher(ctx context.Context, live bool) (*dispatcher, error) {
	s := a.settings
	if err := s.Validate(live); err != nil {
		return nil, err
	}
	leap, err := engine.ParseLeapPolicy(s.Run.LeapPolicy)
	if err != nil {
		return nil, &config.ConfigurationError{Problems: []string{err.Error()}}
	}

	captions := render.NewCaptioner(s.Render.Language)
	renderer, err := render.New(s.Render, captions)
	if err != nil {
		return nil, err
	}

	src, err := a.source(ctx)
	if err != nil {
		return nil, err
	}

	store, err := outcome.Open(ctx, s.Outcome)
	if err != nil {
		return nil, err
	}

	p := &pipeline.Pipeline{
		Matcher:       engine.Matcher{Leap: leap},
		Renderer:      renderer,
		Store:         store,
		Clock:         a.clock,
		SoftDeadline:  s.Run.SoftDeadline,
		RenderWorkers: s.Run.RenderWorkers,
		SendGrace:     config.SendGraceTimeout,
	}
	if live {
		p.Sender = channel.NewSender(channel.NewClient(s.WhatsApp), s.WhatsApp)
	}
	return &dispatcher{pipeline: p, captions: captions, store: store, source: src}, nil
}

func mode(dryRun bool) pipeline.Mode {
	if dryRun {
		return pipeline.DryRun
	}
	return pipeline.Live
}

// runOnce performs a single dispatch run and prints its summary.
func (a *app) runOnce(ctx context.Context, date string, dryRun bool) error {
	today, err := a.day(date)
	if err != nil {
		return err
	}
	d, err := a.newDispatcher(ctx, !dryRun)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	r, err := a.loadRoster(ctx, d.source)
	if err != nil {
		return err
	}
	report, err := d.pipeline.Run(ctx, r.Members, today, mode(dryRun))
	if report != nil {
		if werr := report.WriteSummary(a.out); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// daemon dispatches on the cron schedule and serves the calendar feed until ctx ends.
func (a *app) daemon(ctx context.Context, dryRun bool) error {
	d, err := a.newDispatcher(ctx, !dryRun)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	srv := server.NewFeedServer(a.settings.Run.FeedPort, d.store)
	srv.Location = a.settings.Location()
	feed := &engine.CalendarBuilder{
		Clock:         a.clock,
		Matcher:       d.pipeline.Matcher,
		FormatSummary: d.captions.SummaryFormatter(),
	}

	// refresh reloads the roster and republishes the feed.
	refresh := func(ctx context.Context) ([]roster.Member, error) {
		r, err := a.loadRoster(ctx, d.source)
		if err != nil {
			return nil, err
		}
		ics, err := feed.Build(ctx, r.Members)
		if err != nil {
			return nil, err
		}
		srv.Update(ics)
		return r.Members, nil
	}

	job := func(ctx context.Context) error {
		members, err := refresh(ctx)
		if err != nil {
			return err
		}
		report, err := d.pipeline.Run(ctx, members, a.now(), mode(dryRun))
		if report != nil {
			_ = report.WriteSummary(a.out)
		}
		return err
	}

	sched, err := worker.NewScheduler(a.settings.Run.Schedule, a.settings.Location(), job)
	if err != nil {
		return &config.ConfigurationError{Problems: []string{err.Error()}}
	}

	if _, err := refresh(ctx); err != nil {
		// The feed stays in its initializing state until the next scheduled run.
		slog.Warn(config.ErrRosterRead,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	return g.Wait()
}

// makeTemplates writes placeholder backgrounds for every kind that lacks one.
func (a *app) makeTemplates() error {
	captions := render.NewCaptioner(a.settings.Render.Language)
	created, err := render.MakeTemplates(a.settings.Render, captions)
	for _, path := range created {
		_, _ = fmt.Fprintf(a.out, config.MsgCreated, path)
	}
	return err
}

// renderSample renders both kinds for a sample member using the first photo found.
func (a *app) renderSample() error {
	cfg := a.settings.Render
	renderer, err := render.New(cfg, render.NewCaptioner(cfg.Language))
	if err != nil {
		return err
	}
	photo, err := render.FirstPhoto(cfg.PhotosDir)
	if err != nil {
		return err
	}

	sample := roster.Member{
		ID:          config.SampleMemberID,
		Name:        config.SampleMemberName,
		Designation: config.SampleDesignation,
		GroupName:   config.SampleGroupName,
		City:        config.SampleCity,
		Photo:       photo,
	}
	for _, kind := range engine.Kinds {
		art, err := renderer.Render(sample, kind)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, config.MsgSampleWritten, kind, photo, art.Path)
	}
	return nil
}

// history prints the Outcome Log of one day.
func (a *app) history(ctx context.Context, date string) error {
	day, err := a.day(date)
	if err != nil {
		return err
	}
	store, err := outcome.Open(ctx, a.settings.Outcome)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	list, err := store.List(ctx, roster.DateOf(day).String())
	if err != nil {
		return err
	}
	for _, o := range list {
		detail := o.Detail
		if o.MessageID != "" {
			detail = o.MessageID
		}
		_, _ = fmt.Fprintf(a.out, config.FormatHistory,
			o.Timestamp.In(a.settings.Location()).Format(time.DateTime),
			o.MemberID, o.Kind, o.Status, detail)
	}
	return nil
}
