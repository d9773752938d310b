// Package scheduler drives the worker loop and the periodic janitor sweep
// that keeps the job/batch/clip tables converging under crashes and
// abandoned async work (spec §4.3).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner is the subset of Worker's surface the ticker needs.
type Runner interface {
	RunOnce(ctx context.Context) (Result, error)
}

// Result mirrors worker.Result without importing the worker package,
// keeping scheduler decoupled from worker internals.
type Result struct {
	Processed bool
}

// FastTicker polls the job queue on a short interval with a small pool
// of parallel workers, so queued jobs are picked up well inside the
// batch's responsiveness budget without busy-spinning the database
// (spec §4.3: "every ~1.5s, M≈3 parallel").
type FastTicker struct {
	run        func(ctx context.Context) (Result, error)
	interval   time.Duration
	parallel   int
	tickBudget time.Duration
	log        *slog.Logger
}

// NewFastTicker builds a FastTicker. run is typically (*worker.Worker).RunOnce
// adapted to the scheduler.Result shape by the caller in cmd/worker.
func NewFastTicker(run func(ctx context.Context) (Result, error), interval time.Duration, parallel int, tickBudget time.Duration, log *slog.Logger) *FastTicker {
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	if parallel <= 0 {
		parallel = 3
	}
	if tickBudget <= 0 {
		tickBudget = 55 * time.Second
	}
	return &FastTicker{run: run, interval: interval, parallel: parallel, tickBudget: tickBudget, log: log}
}

// Run blocks, ticking until ctx is cancelled.
func (t *FastTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			t.log.Info("fast ticker stopping")
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick launches up to t.parallel concurrent worker lanes, each draining
// the queue until it sees an empty claim or the tick budget expires.
func (t *FastTicker) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, t.tickBudget)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < t.parallel; i++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			t.drainLane(tickCtx, lane)
		}(i)
	}
	wg.Wait()
}

func (t *FastTicker) drainLane(ctx context.Context, lane int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		result, err := t.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Error("worker lane error", slog.Int("lane", lane), slog.Any("error", err))
			return
		}
		if !result.Processed {
			return
		}
	}
}
