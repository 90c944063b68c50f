package metrics

import (
	"context"
	"time"

	"streamgate/internal/store"
	"streamgate/internal/supervisor"
)

// RunSampler periodically samples CPU/RSS for every running stream.
// Blocks until ctx is cancelled.
func RunSampler(ctx context.Context, interval time.Duration,
	list func() []store.Record, stats func(id string) (supervisor.Stats, error)) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rec := range list() {
				if rec.Status != store.StatusRunning {
					ClearTranscoderStats(rec.ID)
					continue
				}
				s, err := stats(rec.ID)
				if err != nil {
					ClearTranscoderStats(rec.ID)
					continue
				}
				SetTranscoderStats(rec.ID, s.CPUPercent, s.MemoryRSS)
			}
		}
	}
}
