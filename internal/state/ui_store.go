package state

import (
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/five82/reel/internal/prefs"
)

// Step is a position in the intent → upload → processing → results flow.
type Step string

const (
	StepIntent     Step = "intent"
	StepUpload     Step = "upload"
	StepProcessing Step = "processing"
	StepResults    Step = "results"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepIntent, StepUpload, StepProcessing, StepResults:
		return true
	}
	return false
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

const (
	maxHistory                  = 10
	defaultNotificationDuration = 5 * time.Second
)

// Notification is a transient message shown to the user.
type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	AutoClose bool
	Duration  time.Duration
	Timestamp time.Time
}

// UIState is the navigation and presentation slice of the app.
type UIState struct {
	CurrentStep    Step
	SelectedIntent string
	History        []Step
	Language       string
	Theme          string
	Notifications  []Notification
	Loading        bool
	LoadingMessage string
}

// CanGoBack reports whether a previous step is recorded.
func (s UIState) CanGoBack() bool { return len(s.History) > 0 }

func initialUIState(language string) UIState {
	if language == "" {
		language = prefs.DefaultLanguage
	}
	return UIState{
		CurrentStep: StepIntent,
		Language:    language,
		Theme:       prefs.DefaultTheme,
	}
}

// UIStore owns UIState. Language and theme are persisted.
type UIStore struct {
	*Store[UIState]

	now      func() time.Time
	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewUIStore creates a UIStore. blob may be nil to disable persistence.
func NewUIStore(blob *prefs.Blob[prefs.UI], logger *log.Logger) *UIStore {
	return newUIStore(blob, "", logger)
}

// newUIStore starts from language instead of the built-in default. A
// language restored from the blob still wins.
func newUIStore(blob *prefs.Blob[prefs.UI], language string, logger *log.Logger) *UIStore {
	var persist Persistence[UIState]
	if blob != nil {
		persist = &uiPersistence{blob: blob, logger: logger}
	}
	return &UIStore{
		Store:  NewStore("ui", initialUIState(language), persist, logger),
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// SetCurrentStep navigates to step, recording the step being left in the
// bounded history.
func (s *UIStore) SetCurrentStep(step Step) {
	s.SetState(func(st *UIState) {
		if st.CurrentStep == step {
			return
		}
		history := append(slices.Clone(st.History), st.CurrentStep)
		if len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}
		st.History = history
		st.CurrentStep = step
	})
}

// GoBack returns to the most recent step in history. It reports false, and
// changes nothing, when history is empty.
func (s *UIStore) GoBack() bool {
	if !s.Snapshot().CanGoBack() {
		return false
	}
	s.SetState(func(st *UIState) {
		if len(st.History) == 0 {
			return
		}
		last := len(st.History) - 1
		st.CurrentStep = st.History[last]
		st.History = slices.Clone(st.History[:last])
	})
	return true
}

// SetSelectedIntent records the processing intent the user picked.
func (s *UIStore) SetSelectedIntent(intent string) {
	s.SetState(func(st *UIState) { st.SelectedIntent = intent })
}

// SetLoading toggles the loading indicator.
func (s *UIStore) SetLoading(loading bool, message string) {
	s.SetState(func(st *UIState) {
		st.Loading = loading
		if loading {
			st.LoadingMessage = message
		} else {
			st.LoadingMessage = ""
		}
	})
}

// SetLanguage sets the interface language.
func (s *UIStore) SetLanguage(lang string) {
	s.SetState(func(st *UIState) { st.Language = lang })
}

// SetTheme sets the interface theme.
func (s *UIStore) SetTheme(theme string) {
	s.SetState(func(st *UIState) { st.Theme = theme })
}

// AddNotification appends n and returns its id. Auto-closing notifications
// remove themselves after their duration.
func (s *UIStore) AddNotification(n Notification) string {
	n.ID = uuid.NewString()
	n.Timestamp = s.now()
	if n.Type == "" {
		n.Type = NotifyInfo
	}
	if n.AutoClose && n.Duration <= 0 {
		n.Duration = defaultNotificationDuration
	}

	s.SetState(func(st *UIState) {
		st.Notifications = append(slices.Clone(st.Notifications), n)
	})

	if n.AutoClose {
		id := n.ID
		s.timersMu.Lock()
		s.timers[id] = time.AfterFunc(n.Duration, func() { s.RemoveNotification(id) })
		s.timersMu.Unlock()
	}
	return n.ID
}

// Info adds an auto-closing info notification.
func (s *UIStore) Info(message string) string {
	return s.AddNotification(Notification{Type: NotifyInfo, Message: message, AutoClose: true})
}

// Success adds an auto-closing success notification.
func (s *UIStore) Success(message string) string {
	return s.AddNotification(Notification{Type: NotifySuccess, Message: message, AutoClose: true})
}

// Warning adds an auto-closing warning notification.
func (s *UIStore) Warning(message string) string {
	return s.AddNotification(Notification{Type: NotifyWarning, Message: message, AutoClose: true, Duration: 8 * time.Second})
}

// Error adds a sticky error notification.
func (s *UIStore) Error(message string) string {
	return s.AddNotification(Notification{Type: NotifyError, Message: message})
}

// RemoveNotification drops the notification with id, reporting whether it
// existed.
func (s *UIStore) RemoveNotification(id string) bool {
	s.stopTimer(id)
	if !slices.ContainsFunc(s.Snapshot().Notifications, func(n Notification) bool { return n.ID == id }) {
		return false
	}
	s.SetState(func(st *UIState) {
		st.Notifications = slices.DeleteFunc(slices.Clone(st.Notifications), func(n Notification) bool {
			return n.ID == id
		})
	})
	return true
}

// ClearNotifications removes every notification.
func (s *UIStore) ClearNotifications() {
	s.stopAllTimers()
	s.SetState(func(st *UIState) { st.Notifications = nil })
}

// ResetSession returns to the intent step and clears the navigation
// session. Notifications and preferences are kept.
func (s *UIStore) ResetSession() {
	s.SetState(func(st *UIState) {
		st.CurrentStep = StepIntent
		st.SelectedIntent = ""
		st.History = nil
		st.Loading = false
		st.LoadingMessage = ""
	})
}

// Reset restores the initial state except for persisted preferences.
func (s *UIStore) Reset() {
	s.stopAllTimers()
	s.SetState(func(st *UIState) {
		fresh := initialUIState(st.Language)
		fresh.Theme = st.Theme
		*st = fresh
	})
}

// Close stops pending auto-close timers.
func (s *UIStore) Close() {
	s.stopAllTimers()
}

func (s *UIStore) stopTimer(id string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *UIStore) stopAllTimers() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

type uiPersistence struct {
	blob   *prefs.Blob[prefs.UI]
	logger *log.Logger
	mu     sync.Mutex
	last   prefs.UI
}

func (p *uiPersistence) Restore(st *UIState) {
	loaded := p.blob.Load(prefs.UI{Language: st.Language, Theme: st.Theme})
	if loaded.Language != "" {
		st.Language = loaded.Language
	}
	if loaded.Theme != "" {
		st.Theme = loaded.Theme
	}
	p.last = prefs.UI{Language: st.Language, Theme: st.Theme}
}

func (p *uiPersistence) Persist(st UIState) {
	next := prefs.UI{Language: st.Language, Theme: st.Theme}
	p.mu.Lock()
	defer p.mu.Unlock()
	if next == p.last {
		return
	}
	if err := p.blob.Save(next); err != nil {
		if p.logger != nil {
			p.logger.Warn("save ui preferences", "err", err)
		}
		return
	}
	p.last = next
}
