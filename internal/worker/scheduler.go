package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/robfig/cron/v3"
)

// Job is one dispatch run. It receives the scheduler's context.
type Job func(ctx context.Context) error

// Scheduler fires Job on a cron schedule in a fixed timezone, and on demand.
// At most one Job runs at a time; triggers arriving during a run are dropped.
type Scheduler struct {
	schedule cron.Schedule
	expr     string
	loc      *time.Location
	job      Job

	// RunOnStart fires Job once as soon as Run starts.
	RunOnStart bool

	trigger chan struct{}
	running sync.Mutex
	manual  sync.WaitGroup
}

// NewScheduler validates expr (standard 5-field cron or a descriptor like @daily).
func NewScheduler(expr string, loc *time.Location, job Job) (*Scheduler, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%s: %q: %w", config.ErrSchedule, expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		schedule: sched,
		expr:     expr,
		loc:      loc,
		job:      job,
		trigger:  make(chan struct{}, config.ChannelBufferSize),
	}, nil
}

// Next returns the first fire time strictly after t, in the scheduler's timezone.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Trigger requests an immediate run without blocking.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, then waits for an in-flight Job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	log := slog.With(config.LogKeyComponent, config.CompWorker)

	errLog := slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(errLog))),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.fire(ctx, false) }))
	c.Start()

	log.Info(config.MsgWorkerStart,
		config.LogKeySchedule, s.expr,
		config.LogKeyTimezone, s.loc.String(),
		config.LogKeyNext, s.Next(time.Now()),
	)

	if s.RunOnStart {
		s.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info(config.MsgWorkerStop)
			<-c.Stop().Done()
			s.manual.Wait()
			return nil

		case <-s.trigger:
			s.manual.Go(func() { s.fire(ctx, true) })
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, manual bool) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		slog.Warn(config.MsgJobBusy,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyManual, manual,
		)
		return
	}
	defer s.running.Unlock()

	slog.Info(config.MsgJobTriggered,
		config.LogKeyComponent, config.CompWorker,
		config.LogKeyManual, manual,
	)
	if err := s.job(ctx); err != nil {
		slog.Error(config.MsgJobFailed,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyError, err,
		)
	}
}
