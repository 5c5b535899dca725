// Package app is reel's composition root.
//
// # Overview
//
// New loads configuration and builds every long-lived component exactly
// once, returning them in a Context that is passed to the dashboard and
// the CLI commands. There are no package-level singletons.
//
//	┌──────────────┐
//	│   New()      │ build components
//	└──────┬───────┘
//	       ├─────> config.Load()        TOML config + defaults
//	       ├─────> logging.New()        charmbracelet/log logger
//	       ├─────> i18n.New()           embedded catalogs
//	       ├─────> api.NewClient()      HTTP adapter (breaker + limiter)
//	       ├─────> realtime.NewManager() WebSocket with polling fallback
//	       ├─────> state.NewManager()   UI / video / app stores
//	       ├─────> jobs.NewMonitor()    HTTP job follower
//	       └─────> upload.NewUploader() chunked uploads
//
// Start wires the Bridge, connects the real-time channel and launches the
// refresher. Run does both and then blocks in the dashboard.
//
// # Bridge
//
// The Bridge listens on the connection manager and writes into the stores:
//
//   - connection_state → AppStore.SetConnectionState
//   - queue_stats, queue_stats_update → AppStore.SetQueueStats
//   - job_status, job_progress_update for the current job → progress, then
//     results or failure once the job is terminal
//
// Completion is handled once per job even when the live channel and the
// polling fallback both report it.
//
// # Refresher
//
// StartRefresher keeps agents and queue statistics current on a slow timer
// regardless of the connection state. Consecutive failures back off
// exponentially up to 30s and are recorded as the app store's LastError.
//
// # Error Handling
//
// Fatal errors (returned from New): unreadable or invalid configuration,
// an unusable API base URL, a log file that cannot be opened.
//
// Everything after startup is recoverable: transport failures are absorbed
// by the connection manager, refresh failures are logged, and upload or
// job failures are recorded on the video store for the dashboard to show.
package app
