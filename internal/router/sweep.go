// ABOUTME: Periodic timeout sweep for pending/processing messages past their window
// ABOUTME: Runs on a fixed ticker independent of request traffic

package router

import (
	"context"
	"time"

	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/store"
)

// DefaultSweepInterval is how often the timeout sweep runs.
const DefaultSweepInterval = 60 * time.Second

// RunSweeper runs the timeout sweep every interval until ctx is cancelled.
// Sweep failures are logged and retried on the next tick; they never crash
// the process.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("timeout sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("timeout sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("timed out stale messages", "count", n)
			}
		}
	}
}

// SweepOnce transitions every eligible message to timeout and emits one
// message_timeout event per message. Only messages that requested a delivery
// window are eligible. Returns the number of messages timed out.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredMessages(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	timedOut := 0
	for _, msg := range expired {
		err := s.store.TransitionMessage(ctx, msg.ID, store.StatusTimeout,
			"delivery window elapsed",
			[]string{store.StatusPending, store.StatusProcessing})
		if err != nil {
			// Lost a race with a concurrent transition; skip it
			s.logger.Warn("could not time out message", "message_id", msg.ID, "error", err)
			continue
		}

		timedOut++
		s.broker.Publish(events.Event{
			Type: events.TypeMessageTimeout,
			Payload: map[string]any{
				"message_id": msg.ID,
				"to":         msg.ToAgent,
				"error":      "delivery window elapsed",
			},
		})
	}

	return timedOut, nil
}
