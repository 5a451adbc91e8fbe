package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SweepWorker runs the expiry sweep on a fixed interval. Runs never overlap:
// if a sweep is still going when the next tick fires, the tick is skipped.
type SweepWorker struct {
	sweep    func(ctx context.Context)
	interval time.Duration
	logger   *zap.Logger
	running  atomic.Bool
	done     chan struct{}
}

// NewSweepWorker constructs the worker around a sweep function.
func NewSweepWorker(interval time.Duration, logger *zap.Logger, sweep func(ctx context.Context)) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepWorker{
		sweep:    sweep,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Wait blocks until the loop has fully stopped after cancellation.
func (w *SweepWorker) Wait() {
	<-w.done
}

func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sweep worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweep worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SweepWorker) tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("previous sweep still running; skipping tick")
		return
	}
	defer w.running.Store(false)
	w.sweep(ctx)
}
