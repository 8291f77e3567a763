package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type runner interface {
	RunOnce(ctx context.Context) error
}

// DispatchWorker drives the notification engine on a fixed schedule. One
// pass runs at a time; overlapping schedules are the engine's concern, not
// the worker's.
type DispatchWorker struct {
	engine   runner
	interval time.Duration
	log      zerolog.Logger
}

func NewDispatchWorker(engine runner, interval time.Duration, log zerolog.Logger) *DispatchWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DispatchWorker{engine: engine, interval: interval, log: log}
}

// Run blocks until the context is cancelled, invoking one dispatch pass per
// tick. A failed pass is logged and the next tick retries from scratch.
func (w *DispatchWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("dispatch worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("dispatch worker stopped")
			return
		case <-ticker.C:
			if err := w.engine.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("dispatch pass failed")
			}
		}
	}
}
