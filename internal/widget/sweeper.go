package widget

import (
	"context"
	"time"
)

const sweepInterval = time.Minute

// EvictCallback is called for every user whose manager the sweeper closed.
type EvictCallback func(userID string)

// StartSweeper runs a background goroutine that periodically closes idle
// managers until ctx ends. A non-positive ttl disables sweeping.
func StartSweeper(ctx context.Context, h *Hub, ttl time.Duration, onEvict EvictCallback) {
	if ttl <= 0 {
		h.logger.Info("Widget sweeper disabled")
		return
	}
	interval := sweepInterval
	if ttl < interval {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		h.logger.Info("Widget sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepIdle(h, ttl, onEvict)
			case <-ctx.Done():
				h.logger.Info("Widget sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepIdle(h *Hub, ttl time.Duration, onEvict EvictCallback) {
	evicted := h.Sweep(ttl)
	if len(evicted) == 0 {
		return
	}
	for _, userID := range evicted {
		if onEvict != nil {
			onEvict(userID)
		}
	}
	h.logger.Info("Widget sweeper evicted idle managers", "count", len(evicted), "remaining", h.Len())
}
