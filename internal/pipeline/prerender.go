package pipeline

import (
	"context"
	"log/slog"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
	"github.com/jsgian/go-wishes/internal/render"
	"golang.org/x/sync/errgroup"
)

type rendered struct {
	art *render.Artifact
	err error
}

// prerender renders, in parallel, the artifacts the dispatch loop will need.
// Events that will be skipped or are ineligible are left out. A nil slot means
// the loop renders inline (workers disabled, or the run was cancelled first).
func (p *Pipeline) prerender(ctx context.Context, events []engine.Event, day *outcome.Day) []*rendered {
	out := make([]*rendered, len(events))
	if p.RenderWorkers <= 1 || len(events) < 2 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.RenderWorkers)

	for i, ev := range events {
		if _, sent := day.AlreadySent(ev.MemberID(), ev.Kind); sent || !ev.Member.Eligible() {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			art, err := p.Renderer.Render(ev.Member, ev.Kind)
			// Each goroutine owns its slot.
			out[i] = &rendered{art: art, err: err}
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug(config.MsgRendered,
		config.LogKeyComponent, config.CompPipeline,
		config.LogKeyWorkers, p.RenderWorkers,
		config.LogKeyEvents, len(events),
	)
	return out
}
