package app

import (
	"context"
	"time"

	"github.com/five82/marquee/internal/logging"
)

const (
	defaultRevalidateInterval = time.Minute
	maxBackoff                = 15 * time.Minute
)

// Revalidator refreshes stale cached queries. *query.Cache satisfies it.
type Revalidator interface {
	RevalidateStale(ctx context.Context) (int, error)
}

// StartRevalidator launches a goroutine that refetches stale successful
// queries every interval, backing off while refetches fail. It returns
// immediately.
func StartRevalidator(ctx context.Context, cache Revalidator, interval time.Duration) {
	if interval <= 0 {
		interval = defaultRevalidateInterval
	}
	log := logging.Component("revalidate")
	go func() {
		failures := 0
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			n, err := cache.RevalidateStale(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				failures++
				log.Warn().Err(err).Int("failures", failures).Msg("background revalidation failed")
			default:
				failures = 0
				if n > 0 {
					log.Debug().Int("queries", n).Msg("revalidated stale queries")
				}
			}
			timer.Reset(calculateBackoff(failures, interval))
		}
	}()
}

// calculateBackoff doubles base for each consecutive failure, capped at
// maxBackoff. A base above the cap is returned unchanged.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 || base >= maxBackoff {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
