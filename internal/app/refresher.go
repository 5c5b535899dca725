package app

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/realtime"
	"github.com/five82/reel/internal/state"
)

const defaultRefreshInterval = 15 * time.Second

// BackendAPI is what the refresher reads.
type BackendAPI interface {
	FetchQueueStats(ctx context.Context) (api.QueueStats, error)
	FetchAgents(ctx context.Context) ([]api.Agent, error)
}

// StartRefresher launches a goroutine that keeps agents and queue stats in
// the app store fresh independent of the real-time channel. Consecutive
// failures back off exponentially. It returns immediately; the goroutine
// exits with ctx.
func StartRefresher(ctx context.Context, stores *state.Manager, client BackendAPI, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		failures := 0
		for {
			if err := refresh(ctx, stores, client); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Warn("backend refresh failed", "failures", failures, "err", err)
			} else {
				failures = 0
			}

			wait := interval
			if failures > 0 {
				wait = realtime.Backoff(failures, interval, 0)
				if wait < interval {
					wait = interval
				}
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	return done
}

// refresh fetches queue stats and agents. The first error is recorded on
// the app store; data that did arrive is still applied.
func refresh(ctx context.Context, stores *state.Manager, client BackendAPI) error {
	stats, statsErr := client.FetchQueueStats(ctx)
	if statsErr == nil {
		stores.App().SetQueueStats(stats)
	}
	agents, agentsErr := client.FetchAgents(ctx)
	if agentsErr == nil {
		stores.App().SetAgents(agents)
	}

	err := statsErr
	if err == nil {
		err = agentsErr
	}
	if err != nil {
		stores.App().SetLastError(err.Error())
		return err
	}
	if stores.App().Snapshot().LastError != "" {
		stores.App().SetLastError("")
	}
	return nil
}
