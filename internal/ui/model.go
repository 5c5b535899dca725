package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/events"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/realtime"
	"github.com/five82/reel/internal/state"
)

// DefaultIntents are offered on the intent step when Options.Intents is empty.
var DefaultIntents = []string{"short_clips", "highlights", "summary", "chapters"}

// Connection is the part of the connection manager the dashboard reads.
type Connection interface {
	State() realtime.State
	On(event string, fn events.Listener[realtime.Message]) events.Registration
}

// Translator resolves interface strings.
type Translator interface {
	T(key string, args ...any) string
	Next() string
}

// Options configure the dashboard.
type Options struct {
	Context    context.Context
	Stores     *state.Manager
	Conn       Connection
	Translator Translator
	// Submit starts upload and processing for a path or URL. It runs off the
	// UI goroutine.
	Submit func(ctx context.Context, source string) error
	// Abandon leaves the current job and returns to intent selection. Nil
	// falls back to Stores.BackToIntent.
	Abandon func()
	Intents []string
	Logger  *log.Logger
}

// graphMsg carries a fresh store snapshot.
type graphMsg state.Graph

// liveMsg is a progress frame delivered straight from the connection.
type liveMsg struct {
	source string
	job    api.JobStatus
	at     time.Time
}

type submitDoneMsg struct{ err error }

// Model is the root dashboard state for Bubble Tea.
type Model struct {
	ctx     context.Context
	stores  *state.Manager
	conn    Connection
	tr      Translator
	submit  func(context.Context, string) error
	abandon func()
	logger  *log.Logger

	changes chan struct{}
	live    chan liveMsg
	cleanup []func()

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model

	theme    Theme
	width    int
	height   int
	ready    bool
	showHelp bool

	graph      state.Graph
	intents    []string
	cursor     int
	clipCursor int
	submitting bool
	lastLive   liveMsg
}

// New creates the dashboard model and subscribes it to the stores and the
// connection. Call Close to unsubscribe.
func New(opts Options) *Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	intents := opts.Intents
	if len(intents) == 0 {
		intents = DefaultIntents
	}

	input := textinput.New()
	input.Placeholder = "~/Videos/talk.mp4 or https://…"
	input.CharLimit = 2048

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		ctx:     ctx,
		stores:  opts.Stores,
		conn:    opts.Conn,
		tr:      opts.Translator,
		submit:  opts.Submit,
		abandon: opts.Abandon,
		logger:  opts.Logger,
		changes: make(chan struct{}, 1),
		live:    make(chan liveMsg, 1),
		help:    help.New(),
		spinner: sp,
		input:   input,
		intents: intents,
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	if m.abandon == nil {
		m.abandon = m.stores.BackToIntent
	}

	m.cleanup = append(m.cleanup, m.stores.Subscribe(func(state.Graph) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}))
	if m.conn != nil {
		for _, ev := range []string{realtime.EventJobProgress, realtime.EventJobStatus} {
			reg := m.conn.On(ev, m.onLive)
			m.cleanup = append(m.cleanup, func() { reg.Unsubscribe() })
		}
	}

	m.setGraph(m.stores.Snapshot())
	return m
}

// Close removes the model's store and connection listeners.
func (m *Model) Close() {
	for _, fn := range m.cleanup {
		fn()
	}
	m.cleanup = nil
}

// onLive forwards progress frames for the current job without going
// through the stores. Only the newest pending frame is kept.
func (m *Model) onLive(msg realtime.Message) {
	job, err := api.NormalizeJob(msg.Data)
	if err != nil {
		return
	}
	lm := liveMsg{source: msg.Source, job: job, at: time.Now()}
	for {
		select {
		case m.live <- lm:
			return
		default:
		}
		select {
		case <-m.live:
		default:
		}
	}
}

func (m *Model) t(key string, args ...any) string {
	if m.tr == nil {
		return key
	}
	return m.tr.T(key, args...)
}

func waitForChange(ch <-chan struct{}, stores *state.Manager) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return graphMsg(stores.Snapshot())
	}
}

func waitForLive(ch <-chan liveMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.spinner.Tick,
		waitForChange(m.changes, m.stores),
		waitForLive(m.live),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-12, 20)
		m.ready = true
		return m, nil

	case graphMsg:
		m.setGraph(state.Graph(msg))
		return m, waitForChange(m.changes, m.stores)

	case liveMsg:
		if msg.job.ID == m.graph.Video.JobID {
			m.lastLive = msg
		}
		return m, waitForLive(m.live)

	case submitDoneMsg:
		m.submitting = false
		if msg.err != nil {
			m.logger.Warn("submit failed", "err", msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// setGraph applies a snapshot and syncs the derived widget state.
func (m *Model) setGraph(g state.Graph) {
	prevStep := m.graph.UI.CurrentStep
	prevLang := m.graph.UI.Language
	m.graph = g
	m.theme = GetTheme(g.UI.Theme)
	if g.UI.Language != prevLang || !m.keysReady() {
		m.keys = DefaultKeyMap().localized(m.t)
	}

	if g.UI.CurrentStep == state.StepUpload {
		if prevStep != state.StepUpload {
			m.input.SetValue("")
		}
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	if g.UI.CurrentStep != prevStep {
		m.clipCursor = 0
	}
	if m.clipCursor >= len(g.Video.Clips) {
		m.clipCursor = max(len(g.Video.Clips)-1, 0)
	}
}

func (m *Model) keysReady() bool {
	return len(m.keys.Quit.Keys()) > 0
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	if m.showHelp {
		m.showHelp = false
		return nil
	}

	step := m.graph.UI.CurrentStep
	if step == state.StepUpload && m.input.Focused() {
		return m.handleUploadKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Theme):
		m.stores.UI().SetTheme(NextTheme(m.graph.UI.Theme))
	case key.Matches(msg, m.keys.Language):
		if m.tr != nil {
			m.stores.ChangeLanguage(m.tr.Next())
		}
	case key.Matches(msg, m.keys.Dismiss):
		if n := m.graph.UI.Notifications; len(n) > 0 {
			m.stores.UI().RemoveNotification(n[len(n)-1].ID)
		}
	case key.Matches(msg, m.keys.Home):
		m.abandon()
	case key.Matches(msg, m.keys.Back):
		m.stores.UI().GoBack()
	case key.Matches(msg, m.keys.Up):
		m.move(-1)
	case key.Matches(msg, m.keys.Down):
		m.move(1)
	case key.Matches(msg, m.keys.Select):
		if step == state.StepIntent && len(m.intents) > 0 {
			m.stores.SelectIntent(m.intents[m.cursor])
		}
	}
	m.setGraph(m.stores.Snapshot())
	return nil
}

func (m *Model) handleUploadKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.abandon()
		m.setGraph(m.stores.Snapshot())
		return nil
	case tea.KeyEnter:
		source := m.input.Value()
		if source == "" || m.submitting || m.submit == nil {
			return nil
		}
		m.submitting = true
		ctx, submit := m.ctx, m.submit
		return func() tea.Msg {
			return submitDoneMsg{err: submit(ctx, source)}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) move(delta int) {
	switch m.graph.UI.CurrentStep {
	case state.StepIntent:
		m.cursor = wrap(m.cursor+delta, len(m.intents))
	case state.StepResults:
		m.clipCursor = wrap(m.clipCursor+delta, len(m.graph.Video.Clips))
	}
}

func wrap(i, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i % n) + n) % n
}

// Run starts the dashboard and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithContext(m.ctx))
	_, err := p.Run()
	if err != nil && m.ctx.Err() != nil {
		return nil
	}
	return err
}
