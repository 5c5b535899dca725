package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/config"
	"github.com/five82/reel/internal/i18n"
	"github.com/five82/reel/internal/jobs"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/realtime"
	"github.com/five82/reel/internal/state"
	"github.com/five82/reel/internal/ui"
	"github.com/five82/reel/internal/upload"
)

// FeatureLiveUpdates selects the real-time channel for job progress. When
// off, jobs are followed with the HTTP monitor instead.
const FeatureLiveUpdates = "live_updates"

// Options configure the application context.
type Options struct {
	ConfigPath string
	// LogLevel overrides the configured level when set.
	LogLevel string
	// LogOutput overrides the configured log file. Nil uses the config's
	// log_file, then stderr.
	LogOutput io.Writer
	// Interactive discards logs when no log file is configured so they do
	// not draw over the dashboard.
	Interactive    bool
	DisablePersist bool
}

// Context holds every long-lived component. It is built once by New and
// passed to whatever needs it.
type Context struct {
	Config     config.Config
	Logger     *log.Logger
	Translator *i18n.Translator
	API        *api.Client
	Conn       *realtime.Manager
	Stores     *state.Manager
	Monitor    *jobs.Monitor
	Uploader   *upload.Uploader

	closers   []func()
	closeOnce sync.Once
	bridge    *Bridge
	stop      context.CancelFunc
	refresher <-chan struct{}

	deadlineMu sync.Mutex
	deadline   *time.Timer
}

// New loads configuration and constructs the components. Nothing touches
// the network until Start.
func New(opts Options) (*Context, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	c := &Context{Config: cfg}

	out := opts.LogOutput
	if out == nil && cfg.LogFile != "" {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = f.Close() })
		out = f
	}
	if out == nil && opts.Interactive {
		out = io.Discard
	}
	level := cfg.LogLevel
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	c.Logger = logging.New(out, level)

	tr, err := i18n.New(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	c.Translator = tr

	client, err := api.NewClient(cfg.APIBaseURL, api.Options{
		Timeout:           cfg.RequestTimeout.D(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	c.API = client

	c.Conn = realtime.NewManager(realtime.Options{
		URL:                  cfg.WSURL,
		ConnectTimeout:       cfg.ConnectTimeout.D(),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay.D(),
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay.D(),
		PollInterval:         cfg.PollInterval.D(),
		PingInterval:         cfg.PingInterval.D(),
		Source:               client,
		Logger:               c.Logger,
	})

	c.Stores = state.NewManager(state.ManagerOptions{
		PrefsDir:        cfg.PrefsDir,
		DisablePersist:  opts.DisablePersist,
		DefaultFeatures: cfg.Features,
		DefaultLanguage: cfg.Language,
		Translator:      tr,
		Logger:          c.Logger,
	})
	c.Monitor = jobs.NewMonitor(client, jobs.Options{
		Interval:    cfg.MonitorInterval.D(),
		MaxDuration: cfg.MonitorMaxDuration.D(),
		Logger:      c.Logger,
	})
	c.Uploader = upload.NewUploader(client, upload.Options{
		ChunkSize:    cfg.UploadChunkSize,
		Limits:       upload.Limits{MaxSize: cfg.UploadMaxSize},
		ChunkRetries: 2,
		Logger:       c.Logger,
	})
	return c, nil
}

// Start bridges connection events into the stores, opens the real-time
// channel and starts the background refresher.
func (c *Context) Start(ctx context.Context) {
	ctx, c.stop = context.WithCancel(ctx)
	c.bridge = NewBridge(ctx, c.Conn, c.Stores, c.API, logging.Component(c.Logger, "bridge"))
	if !c.Conn.Connect(ctx) {
		c.Logger.Warn("real-time channel unavailable, polling", "url", c.Config.WSURL)
	}
	c.refresher = StartRefresher(ctx, c.Stores, c.API, 0, logging.Component(c.Logger, "refresh"))
}

// Close stops background work and releases resources. It is safe to call
// more than once.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.disarmDeadline()
		if c.stop != nil {
			c.stop()
		}
		if c.Conn != nil {
			c.Conn.Close()
		}
		if c.bridge != nil {
			c.bridge.Close()
		}
		if c.refresher != nil {
			<-c.refresher
		}
		if c.Stores != nil {
			c.Stores.Close()
		}
		for i := len(c.closers) - 1; i >= 0; i-- {
			c.closers[i]()
		}
	})
}

// Submit starts processing source, a local path or an http(s) URL, with
// the intent selected in the UI store. Failures are recorded on the stores
// as well as returned.
func (c *Context) Submit(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return errors.New("no video given")
	}
	intent := c.Stores.UI().Snapshot().SelectedIntent
	if intent == "" {
		return errors.New("no intent selected")
	}

	req := api.CreateJobRequest{Intent: intent}
	if looksLikeURL(source) {
		if res := upload.ValidateURL(source); !res.Valid {
			err := errors.New(res.Error)
			c.Stores.FailUpload(err)
			return err
		}
		c.Stores.StartVideoUpload(state.VideoSource{Name: source, URL: source})
		req.VideoURL = source
	} else {
		path := expandHome(source)
		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		c.Stores.StartVideoUpload(state.VideoSource{Name: filepath.Base(path), Path: path, Size: size})
		res, err := c.Uploader.Upload(ctx, path, func(sent, total int64) {
			if total > 0 {
				c.Stores.UploadProgress(float64(sent) * 100 / float64(total))
			}
		})
		if err != nil {
			c.Stores.FailUpload(err)
			return err
		}
		req.UploadID = res.UploadID
	}

	job, err := c.API.CreateJob(ctx, req)
	if err != nil {
		err = fmt.Errorf("create job: %w", err)
		c.Stores.FailUpload(err)
		return err
	}
	c.Stores.StartProcessing(job.ID)
	c.follow(ctx, job.ID)
	return nil
}

// follow tracks jobID over the real-time channel, or with the monitor when
// live updates are turned off. Both paths give up after MonitorMaxDuration.
func (c *Context) follow(ctx context.Context, jobID string) {
	if c.Stores.App().Snapshot().FeatureEnabled(FeatureLiveUpdates) {
		c.Conn.SubscribeToJob(jobID)
		c.Conn.RequestJobStatus(jobID)
		c.armDeadline(jobID)
		return
	}

	go func() {
		final, err := c.Monitor.Watch(ctx, jobID, func(j api.JobStatus) {
			if !j.Terminal() {
				c.Stores.UpdateProgress(j.Progress, j.Stage)
			}
		})
		if c.Stores.Video().Snapshot().JobID != jobID {
			return
		}
		switch {
		case err != nil:
			if ctx.Err() == nil {
				c.Stores.FailJob(err)
			}
		case final.Succeeded():
			clips, err := c.API.FetchJobClips(ctx, jobID)
			if err != nil {
				c.Stores.FailJob(fmt.Errorf("load clips: %w", err))
				return
			}
			c.Stores.ShowResults(clips)
		default:
			c.Stores.FailJob(jobError(final))
		}
	}()
}

// armDeadline fails jobID if it is still processing once the monitor
// duration has passed. The subscription is dropped so polling stops.
func (c *Context) armDeadline(jobID string) {
	limit := c.Config.MonitorMaxDuration.D()
	if limit <= 0 {
		return
	}
	c.deadlineMu.Lock()
	defer c.deadlineMu.Unlock()
	if c.deadline != nil {
		c.deadline.Stop()
	}
	c.deadline = time.AfterFunc(limit, func() {
		v := c.Stores.Video().Snapshot()
		if v.JobID != jobID || !v.IsProcessing {
			return
		}
		c.Logger.Warn("job still running at monitor deadline", "job", jobID, "after", limit)
		c.Conn.UnsubscribeFromJob(jobID)
		c.Stores.FailJob(fmt.Errorf("job %s: %w", jobID, jobs.ErrMonitorTimeout))
	})
}

func (c *Context) disarmDeadline() {
	c.deadlineMu.Lock()
	defer c.deadlineMu.Unlock()
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
}

// Abandon leaves the current job and returns to intent selection.
func (c *Context) Abandon() {
	c.disarmDeadline()
	if id := c.Stores.Video().Snapshot().JobID; id != "" {
		c.Conn.UnsubscribeFromJob(id)
	}
	c.Stores.BackToIntent()
}

// Run builds the context, starts it and shows the dashboard until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	opts.Interactive = true
	c, err := New(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	c.Start(ctx)
	return ui.Run(ui.Options{
		Context:    ctx,
		Stores:     c.Stores,
		Conn:       c.Conn,
		Translator: c.Translator,
		Submit:     c.Submit,
		Abandon:    c.Abandon,
		Logger:     logging.Component(c.Logger, "ui"),
	})
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
