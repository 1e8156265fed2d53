package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ytreport/internal/logging"
)

// HeartbeatMonitor keeps running runs alive in the store and returns runs
// whose owner stopped reporting to pending.
type HeartbeatMonitor struct {
	store             Store
	logger            *slog.Logger
	clock             Clock
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store Store, logger *slog.Logger, clock Clock, interval, timeout time.Duration) *HeartbeatMonitor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		clock:             clock,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleRuns resets running runs whose heartbeat is older than the
// timeout.
func (h *HeartbeatMonitor) ReclaimStaleRuns(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	return h.reclaim(ctx, logger, h.clock.Now().Add(-h.heartbeatTimeout))
}

// ReclaimAll resets every running run. Used at startup, when no run can
// legitimately be owned by this process yet.
func (h *HeartbeatMonitor) ReclaimAll(ctx context.Context, logger *slog.Logger) error {
	return h.reclaim(ctx, logger, h.clock.Now().Add(time.Second))
}

func (h *HeartbeatMonitor) reclaim(ctx context.Context, logger *slog.Logger, cutoff time.Time) error {
	reclaimed, err := h.store.ReclaimStaleRuns(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale runs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return nil
}

// StartLoop refreshes the heartbeat of runID until ctx is done.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, runID string) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, runID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed",
						logging.Error(err),
						logging.String(logging.FieldEventType, "heartbeat_failed"),
						logging.String(logging.FieldErrorHint, "check database access; the run may be reclaimed"),
					)
				}
			}
		}
	}
}
