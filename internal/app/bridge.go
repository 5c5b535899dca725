package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/events"
	"github.com/five82/reel/internal/realtime"
	"github.com/five82/reel/internal/state"
)

// ClipFetcher loads the clips of a finished job.
type ClipFetcher interface {
	FetchJobClips(ctx context.Context, jobID string) ([]api.Clip, error)
}

// EventSource is the subset of the connection manager the bridge listens to.
type EventSource interface {
	On(event string, fn events.Listener[realtime.Message]) events.Registration
}

// Bridge copies connection events into the stores: connection state and
// queue statistics into the app store, progress and completion of the
// current job into the video store.
type Bridge struct {
	ctx    context.Context
	stores *state.Manager
	clips  ClipFetcher
	logger *log.Logger

	mu       sync.Mutex
	finished map[string]bool
	regs     []events.Registration
	wg       sync.WaitGroup
}

// NewBridge registers listeners on src. Clip fetches run under ctx.
func NewBridge(ctx context.Context, src EventSource, stores *state.Manager, clips ClipFetcher, logger *log.Logger) *Bridge {
	b := &Bridge{
		ctx:      ctx,
		stores:   stores,
		clips:    clips,
		logger:   logger,
		finished: make(map[string]bool),
	}
	b.regs = []events.Registration{
		src.On(realtime.EventConnectionState, b.onConnectionState),
		src.On(realtime.EventQueueStats, b.onQueueStats),
		src.On(realtime.EventQueueStatsUpdate, b.onQueueStats),
		src.On(realtime.EventJobStatus, b.onJob),
		src.On(realtime.EventJobProgress, b.onJob),
		src.On(realtime.EventWorkerStatus, b.onWorkerStatus),
	}
	return b
}

// Close removes the listeners and waits for in-flight clip fetches.
func (b *Bridge) Close() {
	for _, r := range b.regs {
		r.Unsubscribe()
	}
	b.wg.Wait()
}

func (b *Bridge) onConnectionState(msg realtime.Message) {
	b.stores.App().SetConnectionState(msg.State)
}

func (b *Bridge) onQueueStats(msg realtime.Message) {
	stats, err := api.NormalizeQueueStats(msg.Data)
	if err != nil {
		b.logger.Warn("ignoring queue stats", "source", msg.Source, "err", err)
		return
	}
	b.stores.App().SetQueueStats(stats)
}

func (b *Bridge) onWorkerStatus(msg realtime.Message) {
	b.logger.Debug("worker status", "source", msg.Source, "bytes", len(msg.Data))
}

func (b *Bridge) onJob(msg realtime.Message) {
	job, err := api.NormalizeJob(msg.Data)
	if err != nil {
		b.logger.Warn("ignoring job update", "type", msg.Type, "source", msg.Source, "err", err)
		return
	}

	video := b.stores.Video().Snapshot()
	if job.ID != video.JobID || !video.IsProcessing {
		return
	}

	if !job.Terminal() {
		b.stores.UpdateProgress(job.Progress, job.Stage)
		return
	}
	if !b.markFinished(job.ID) {
		return
	}

	switch {
	case job.Succeeded():
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.loadResults(job)
		}()
	case job.Status == api.JobCancelled:
		b.stores.FailJob(fmt.Errorf("job %s was cancelled", job.ID))
	default:
		b.stores.FailJob(jobError(job))
	}
}

func (b *Bridge) loadResults(job api.JobStatus) {
	ctx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
	defer cancel()

	clips, err := b.clips.FetchJobClips(ctx, job.ID)
	if err != nil {
		b.logger.Error("fetch clips", "job", job.ID, "err", err)
		b.stores.FailJob(fmt.Errorf("load clips: %w", err))
		return
	}
	if b.stores.Video().Snapshot().JobID != job.ID {
		return
	}
	b.stores.ShowResults(clips)
}

// markFinished records jobID as handled and reports whether this call did
// so first. Live and polled updates can both report completion.
func (b *Bridge) markFinished(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished[jobID] {
		return false
	}
	b.finished[jobID] = true
	return true
}

func jobError(job api.JobStatus) error {
	switch {
	case job.Error != "":
		return errors.New(job.Error)
	case job.Message != "":
		return errors.New(job.Message)
	}
	return fmt.Errorf("job %s %s", job.ID, job.Status)
}
