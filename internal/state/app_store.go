package state

import (
	"maps"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/prefs"
	"github.com/five82/reel/internal/realtime"
)

// AppState is backend-facing status: connection, queue, agents and flags.
type AppState struct {
	Connection    realtime.State
	QueueStats    api.QueueStats
	HasQueueStats bool
	Agents        []api.Agent
	Features      map[string]bool
	LastError     string
	LastUpdated   time.Time
}

// FeatureEnabled reports whether the named feature flag is on.
func (s AppState) FeatureEnabled(name string) bool { return s.Features[name] }

// AppStore owns AppState. Feature flags are persisted.
type AppStore struct {
	*Store[AppState]
	now func() time.Time
}

// NewAppStore creates an AppStore. defaults seeds feature flags before any
// persisted values are applied; blob may be nil.
func NewAppStore(defaults map[string]bool, blob *prefs.Blob[prefs.App], logger *log.Logger) *AppStore {
	initial := AppState{
		Connection: realtime.StateDisconnected,
		Features:   maps.Clone(defaults),
	}
	if initial.Features == nil {
		initial.Features = map[string]bool{}
	}
	var persist Persistence[AppState]
	if blob != nil {
		persist = &appPersistence{blob: blob, logger: logger}
	}
	return &AppStore{Store: NewStore("app", initial, persist, logger), now: time.Now}
}

func (s *AppStore) SetConnectionState(cs realtime.State) {
	s.SetState(func(st *AppState) { st.Connection = cs })
}

func (s *AppStore) SetQueueStats(q api.QueueStats) {
	now := s.now()
	s.SetState(func(st *AppState) {
		st.QueueStats = q
		st.HasQueueStats = true
		st.LastUpdated = now
	})
}

func (s *AppStore) SetAgents(agents []api.Agent) {
	now := s.now()
	s.SetState(func(st *AppState) {
		st.Agents = append([]api.Agent(nil), agents...)
		st.LastUpdated = now
	})
}

// SetFeature turns a feature flag on or off.
func (s *AppStore) SetFeature(name string, enabled bool) {
	s.SetState(func(st *AppState) {
		features := maps.Clone(st.Features)
		if features == nil {
			features = map[string]bool{}
		}
		features[name] = enabled
		st.Features = features
	})
}

func (s *AppStore) SetLastError(msg string) {
	s.SetState(func(st *AppState) { st.LastError = msg })
}

// Reset clears runtime status. Feature flags survive.
func (s *AppStore) Reset() {
	s.SetState(func(st *AppState) {
		*st = AppState{
			Connection: realtime.StateDisconnected,
			Features:   st.Features,
		}
	})
}

type appPersistence struct {
	blob   *prefs.Blob[prefs.App]
	logger *log.Logger
	mu     sync.Mutex
	last   map[string]bool
}

func (p *appPersistence) Restore(st *AppState) {
	loaded := p.blob.Load(prefs.App{Features: maps.Clone(st.Features)})
	features := maps.Clone(st.Features)
	if features == nil {
		features = map[string]bool{}
	}
	maps.Copy(features, loaded.Features)
	st.Features = features
	p.last = maps.Clone(features)
}

func (p *appPersistence) Persist(st AppState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maps.Equal(st.Features, p.last) {
		return
	}
	if err := p.blob.Save(prefs.App{Features: st.Features}); err != nil {
		if p.logger != nil {
			p.logger.Warn("save app preferences", "err", err)
		}
		return
	}
	p.last = maps.Clone(st.Features)
}
