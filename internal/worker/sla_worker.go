package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/service"
)

// Sweeper runs an SLA sweep across all departments.
type Sweeper interface {
	CheckAllSLAs(ctx context.Context, departmentID *string) (*service.SweepResult, error)
}

// SLAWorker periodically escalates breached requests.
type SLAWorker struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSLAWorker builds the worker.
func NewSLAWorker(sweeper Sweeper, interval, timeout time.Duration, logger *zap.Logger) *SLAWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAWorker{sweeper: sweeper, interval: interval, timeout: timeout, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (w *SLAWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Warn("sla worker disabled: non-positive interval")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SLAWorker) sweep(ctx context.Context) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if _, err := w.sweeper.CheckAllSLAs(ctx, nil); err != nil {
		w.logger.Error("sla sweep failed", zap.Error(err))
	}
}

// StartSLAWorker launches the worker in the background.
func StartSLAWorker(ctx context.Context, w *SLAWorker) {
	if w == nil {
		return
	}
	go w.Run(ctx)
}
