// Package jobs follows a processing job until it finishes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/logging"
)

const (
	defaultInterval    = 2 * time.Second
	defaultMaxDuration = 30 * time.Minute
)

// ErrMonitorTimeout is returned when a job is still running after the
// monitor's maximum duration.
var ErrMonitorTimeout = errors.New("job monitor timed out")

// StatusFetcher reads a job's current status.
type StatusFetcher interface {
	FetchJobStatus(ctx context.Context, jobID string) (api.JobStatus, error)
}

// Options configure a Monitor. Zero values use defaults.
type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration
	Logger      *log.Logger
}

// Monitor polls job status until the job reaches a terminal state.
type Monitor struct {
	source      StatusFetcher
	interval    time.Duration
	maxDuration time.Duration
	logger      *log.Logger
}

// NewMonitor returns a Monitor reading from source.
func NewMonitor(source StatusFetcher, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = defaultMaxDuration
	}
	return &Monitor{
		source:      source,
		interval:    opts.Interval,
		maxDuration: opts.MaxDuration,
		logger:      logging.Component(opts.Logger, "jobs"),
	}
}

// Watch polls jobID, calling onUpdate whenever the status, stage or progress
// changes, and returns the terminal status. Transient fetch failures are
// logged and retried on the next tick; a 404 ends the watch.
func (m *Monitor) Watch(ctx context.Context, jobID string, onUpdate func(api.JobStatus)) (api.JobStatus, error) {
	if jobID == "" {
		return api.JobStatus{}, errors.New("job id is required")
	}

	deadline := time.NewTimer(m.maxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last api.JobStatus
	seen := false
	for {
		job, err := m.source.FetchJobStatus(ctx, jobID)
		switch {
		case err == nil:
			if !seen || changed(last, job) {
				seen = true
				last = job
				if onUpdate != nil {
					onUpdate(job)
				}
			}
			if job.Terminal() {
				return job, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		case api.IsStatus(err, http.StatusNotFound):
			return last, fmt.Errorf("watch job %s: %w", jobID, err)
		default:
			m.logger.Warn("job status poll failed", "job", jobID, "err", err)
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			m.logger.Warn("job still running at monitor deadline", "job", jobID, "after", m.maxDuration)
			return last, fmt.Errorf("job %s: %w", jobID, ErrMonitorTimeout)
		case <-ticker.C:
		}
	}
}

func changed(a, b api.JobStatus) bool {
	return a.Status != b.Status || a.Stage != b.Stage || a.Progress != b.Progress || a.Error != b.Error
}
