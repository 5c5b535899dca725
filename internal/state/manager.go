package state

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/prefs"
	"github.com/five82/reel/internal/realtime"
)

// Translator resolves message keys in the current language.
type Translator interface {
	T(key string, args ...any) string
	SetLanguage(lang string)
}

// Graph is a consistent-enough view of every store for rendering.
type Graph struct {
	UI    UIState
	Video VideoState
	App   AppState
}

// ManagerOptions configures NewManager.
type ManagerOptions struct {
	PrefsDir        string
	DisablePersist  bool
	DefaultFeatures map[string]bool
	// DefaultLanguage is used until the user picks a language; a persisted
	// choice takes precedence.
	DefaultLanguage string
	Translator      Translator
	Logger          *log.Logger
}

// Manager composes the UI, video and app stores, keeps them in sync via
// cross-store rules, and exposes multi-store actions.
type Manager struct {
	ui    *UIStore
	video *VideoStore
	app   *AppStore

	tr     Translator
	logger *log.Logger

	closeOnce sync.Once
	unwatch   []func()
}

// NewManager builds the stores and registers the cross-store rules.
func NewManager(opts ManagerOptions) *Manager {
	var (
		uiBlob  *prefs.Blob[prefs.UI]
		appBlob *prefs.Blob[prefs.App]
	)
	if !opts.DisablePersist {
		uiBlob = prefs.NewBlob[prefs.UI](opts.PrefsDir, prefs.UINamespace)
		appBlob = prefs.NewBlob[prefs.App](opts.PrefsDir, prefs.AppNamespace)
	}

	tr := opts.Translator
	if tr == nil {
		tr = keyTranslator{}
	}

	m := &Manager{
		ui:     newUIStore(uiBlob, opts.DefaultLanguage, opts.Logger),
		video:  NewVideoStore(opts.Logger),
		app:    NewAppStore(opts.DefaultFeatures, appBlob, opts.Logger),
		tr:     tr,
		logger: logging.Component(opts.Logger, "stores"),
	}
	tr.SetLanguage(m.ui.Snapshot().Language)
	m.wire()
	return m
}

func (m *Manager) UI() *UIStore       { return m.ui }
func (m *Manager) Video() *VideoStore { return m.video }
func (m *Manager) App() *AppStore     { return m.app }

// Snapshot returns the current state of every store.
func (m *Manager) Snapshot() Graph {
	return Graph{UI: m.ui.Snapshot(), Video: m.video.Snapshot(), App: m.app.Snapshot()}
}

// wire registers the cross-store rules. Each rule only mutates stores other
// than the one it watches.
func (m *Manager) wire() {
	isProcessing := func(s VideoState) bool { return s.IsProcessing }
	uploadError := func(s VideoState) string { return s.UploadError }
	connection := func(s AppState) realtime.State { return s.Connection }

	m.unwatch = append(m.unwatch,
		Watch(m.video.Store,
			Rule[VideoState]{
				Name: "processing-started",
				When: Became(isProcessing, true),
				Then: func(_, _ VideoState) {
					m.ui.SetLoading(true, m.tr.T("loading.processing"))
				},
			},
			Rule[VideoState]{
				Name: "processing-finished",
				When: Left(isProcessing, true),
				Then: func(_, next VideoState) {
					switch {
					case next.ProcessingError != "":
						m.ui.Error(m.tr.T("notify.processing_failed", next.ProcessingError))
					case len(next.Clips) > 0:
						m.ui.Success(m.tr.T("notify.processing_complete", len(next.Clips)))
					}
					m.ui.SetLoading(false, "")
				},
			},
			Rule[VideoState]{
				Name: "upload-failed",
				When: func(prev, next VideoState) bool {
					return Changed(uploadError)(prev, next) && next.UploadError != ""
				},
				Then: func(_, next VideoState) {
					m.ui.Error(m.tr.T("notify.upload_failed", next.UploadError))
				},
			},
		),
		Watch(m.app.Store,
			Rule[AppState]{
				Name: "polling-fallback",
				When: Became(connection, realtime.StatePolling),
				Then: func(_, _ AppState) {
					m.ui.Warning(m.tr.T("notify.polling_fallback"))
				},
			},
			Rule[AppState]{
				Name: "live-restored",
				When: func(prev, next AppState) bool {
					return prev.Connection == realtime.StatePolling && next.Connection == realtime.StateConnected
				},
				Then: func(_, _ AppState) {
					m.ui.Info(m.tr.T("notify.reconnected"))
				},
			},
		),
	)
}

// Subscribe calls fn with a fresh Graph after any store changes. The
// returned function removes every underlying listener.
func (m *Manager) Subscribe(fn func(Graph)) func() {
	notify := func() { fn(m.Snapshot()) }
	offs := []func(){
		m.ui.AddListener(func(_, _ UIState) { notify() }),
		m.video.AddListener(func(_, _ VideoState) { notify() }),
		m.app.AddListener(func(_, _ AppState) { notify() }),
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, off := range offs {
				off()
			}
		})
	}
}

// SelectIntent records the chosen intent and moves to the upload step.
func (m *Manager) SelectIntent(intent string) {
	m.ui.SetSelectedIntent(intent)
	m.ui.SetCurrentStep(StepUpload)
}

// StartVideoUpload selects src and marks it uploading.
func (m *Manager) StartVideoUpload(src VideoSource) {
	m.video.SetCurrentVideo(src)
	m.video.SetUploading(true)
	m.ui.SetCurrentStep(StepUpload)
}

// UploadProgress records upload progress for the current video.
func (m *Manager) UploadProgress(pct float64) {
	m.video.SetUploadProgress(pct)
}

// FailUpload records an upload failure.
func (m *Manager) FailUpload(err error) {
	m.video.SetUploadError(errorText(err))
}

// StartProcessing records jobID and moves to the processing step.
func (m *Manager) StartProcessing(jobID string) {
	m.video.SetUploading(false)
	m.video.SetJobID(jobID)
	m.video.SetIsProcessing(true)
	m.ui.SetCurrentStep(StepProcessing)
}

// UpdateProgress records processing progress for the current job.
func (m *Manager) UpdateProgress(pct float64, stage string) {
	m.video.UpdateProcessingProgress(pct, stage)
}

// ShowResults stores clips, ends processing and moves to the results step.
// Clips are set before processing ends so the completion rule sees them.
func (m *Manager) ShowResults(clips []api.Clip) {
	m.video.UpdateProcessingProgress(100, "")
	m.video.SetClips(clips)
	m.video.SetIsProcessing(false)
	m.ui.SetCurrentStep(StepResults)
}

// FailJob records a processing failure. The user stays on the processing
// step to read the error.
func (m *Manager) FailJob(err error) {
	m.video.SetProcessingError(errorText(err))
}

// BackToIntent abandons the current session and returns to intent
// selection.
func (m *Manager) BackToIntent() {
	m.video.Reset()
	m.ui.ResetSession()
}

// ChangeLanguage switches the translator and the persisted UI language.
func (m *Manager) ChangeLanguage(lang string) {
	m.tr.SetLanguage(lang)
	m.ui.SetLanguage(lang)
}

// ResetAll resets every store.
func (m *Manager) ResetAll() {
	m.ui.Reset()
	m.video.Reset()
	m.app.Reset()
}

// T translates key with the manager's translator.
func (m *Manager) T(key string, args ...any) string {
	return m.tr.T(key, args...)
}

// Close removes the cross-store rules and stops notification timers.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		for _, off := range m.unwatch {
			off()
		}
		m.ui.Close()
	})
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// keyTranslator echoes keys with their arguments when no catalog is wired.
type keyTranslator struct{}

func (keyTranslator) T(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf("%s %v", key, args)
}

func (keyTranslator) SetLanguage(string) {}
