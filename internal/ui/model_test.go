package ui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/events"
	"github.com/five82/reel/internal/i18n"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/realtime"
	"github.com/five82/reel/internal/state"
)

type fakeConn struct {
	*events.Emitter[realtime.Message]
	state realtime.State
}

func (f *fakeConn) State() realtime.State { return f.state }

type submitRecorder struct {
	mu      sync.Mutex
	sources []string
}

func (r *submitRecorder) submit(_ context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	return nil
}

func newTestModel(t *testing.T) (*Model, *state.Manager, *fakeConn, *submitRecorder) {
	t.Helper()
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	stores := state.NewManager(state.ManagerOptions{DisablePersist: true, Translator: tr, Logger: logging.Discard()})
	t.Cleanup(stores.Close)

	conn := &fakeConn{Emitter: events.NewEmitter[realtime.Message](logging.Discard()), state: realtime.StateConnected}
	rec := &submitRecorder{}
	m := New(Options{Stores: stores, Conn: conn, Translator: tr, Submit: rec.submit, Logger: logging.Discard()})
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, stores, conn, rec
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_SelectIntentMovesToUpload(t *testing.T) {
	m, stores, _, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	ui := stores.UI().Snapshot()
	if ui.CurrentStep != state.StepUpload || ui.SelectedIntent != DefaultIntents[1] {
		t.Fatalf("ui = step %q intent %q", ui.CurrentStep, ui.SelectedIntent)
	}
	if !m.input.Focused() {
		t.Fatal("path input not focused on upload step")
	}
}

func TestModel_UploadSubmitsTypedSource(t *testing.T) {
	m, stores, _, rec := newTestModel(t)
	stores.SelectIntent("short_clips")
	m.Update(graphMsg(stores.Snapshot()))

	m.Update(runes("talk.mp4"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on upload step returned no command")
	}
	msg := cmd()
	if done, ok := msg.(submitDoneMsg); !ok || done.err != nil {
		t.Fatalf("cmd() = %#v, want successful submitDoneMsg", msg)
	}
	if len(rec.sources) != 1 || rec.sources[0] != "talk.mp4" {
		t.Fatalf("submitted = %v", rec.sources)
	}

	// letters typed on the upload step go to the input, not to shortcuts
	m.Update(runes("T"))
	if stores.UI().Snapshot().Theme != GetTheme("").Name {
		t.Fatal("theme shortcut fired while typing a path")
	}
}

func TestModel_EscReturnsToIntent(t *testing.T) {
	m, stores, _, _ := newTestModel(t)
	stores.SelectIntent("short_clips")
	m.Update(graphMsg(stores.Snapshot()))

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	if ui := stores.UI().Snapshot(); ui.CurrentStep != state.StepIntent || ui.SelectedIntent != "" {
		t.Fatalf("ui = %#v", ui)
	}
}

func TestModel_ThemeLanguageAndDismiss(t *testing.T) {
	m, stores, _, _ := newTestModel(t)

	m.Update(runes("T"))
	if got := stores.UI().Snapshot().Theme; got != NextTheme("Nightfox") {
		t.Fatalf("theme = %q", got)
	}

	m.Update(runes("L"))
	if got := stores.UI().Snapshot().Language; got != "es" {
		t.Fatalf("language = %q, want es", got)
	}
	if got := m.keys.Quit.Help().Desc; got != "salir" {
		t.Fatalf("quit help = %q, want localized", got)
	}

	stores.UI().Error("first")
	stores.UI().Error("second")
	m.Update(graphMsg(stores.Snapshot()))
	m.Update(runes("x"))
	notes := stores.UI().Snapshot().Notifications
	if len(notes) != 1 || notes[0].Message != "first" {
		t.Fatalf("notifications = %#v, want only the first", notes)
	}
}

func TestModel_StoreChangesArriveAsGraphMsg(t *testing.T) {
	m, stores, _, _ := newTestModel(t)

	stores.App().SetQueueStats(api.QueueStats{Pending: 7})

	msg := waitForChange(m.changes, stores)()
	g, ok := msg.(graphMsg)
	if !ok || g.App.QueueStats.Pending != 7 {
		t.Fatalf("msg = %#v", msg)
	}
}

func TestModel_LiveProgressForCurrentJob(t *testing.T) {
	m, stores, conn, _ := newTestModel(t)
	stores.StartProcessing("job-1")
	m.Update(graphMsg(stores.Snapshot()))

	conn.Emit(realtime.EventJobProgress, realtime.Message{
		Type:   realtime.EventJobProgress,
		Source: realtime.SourceWebSocket,
		Data:   []byte(`{"job_id":"job-1","progress":55}`),
	})

	select {
	case lm := <-m.live:
		m.Update(lm)
	case <-time.After(time.Second):
		t.Fatal("no live message")
	}
	if m.lastLive.job.Progress != 55 || m.lastLive.source != realtime.SourceWebSocket {
		t.Fatalf("lastLive = %#v", m.lastLive)
	}
}

func TestModel_ViewRendersEveryStep(t *testing.T) {
	m, stores, _, _ := newTestModel(t)
	stores.App().SetQueueStats(api.QueueStats{Pending: 2, TotalWorkers: 3})
	stores.App().SetAgents([]api.Agent{{Name: "gpu-1", Status: "idle"}})

	check := func(want ...string) {
		t.Helper()
		m.Update(graphMsg(stores.Snapshot()))
		out := m.View()
		for _, w := range want {
			if !strings.Contains(out, w) {
				t.Fatalf("view missing %q:\n%s", w, out)
			}
		}
	}

	check("reel", "Short clips", "Queue", "gpu-1", "live")
	stores.SelectIntent("short_clips")
	check("Upload")
	stores.StartProcessing("job-9")
	stores.UpdateProgress(30, "transcribe")
	check("job-9", "transcribe", "30%")
	stores.ShowResults([]api.Clip{{ID: "c1", Title: "Opening", StartTime: 0, EndTime: 65}})
	check("1 clips", "Opening", "1:05")
}

func TestModel_HelpOverlay(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m.Update(runes("?"))
	if !m.showHelp || !strings.Contains(m.View(), "language") {
		t.Fatal("help overlay not shown")
	}
	m.Update(runes("j"))
	if m.showHelp {
		t.Fatal("any key should close help")
	}
}

func TestHelpers(t *testing.T) {
	if got := formatClock(3725 * time.Second); got != "1:02:05" {
		t.Fatalf("formatClock = %q", got)
	}
	if got := truncateMiddle("abcdefghij", 5); got != "ab…ij" {
		t.Fatalf("truncateMiddle = %q", got)
	}
	if got := wrap(-1, 4); got != 3 {
		t.Fatalf("wrap = %d", got)
	}
	if NextTheme("Slate") != "Nightfox" || GetTheme("missing").Name != "Nightfox" {
		t.Fatal("theme cycle broken")
	}
}

func TestNoticeUsesAlternateSurface(t *testing.T) {
	for _, name := range []string{"Nightfox", "Kanagawa", "Slate"} {
		th := GetTheme(name)
		if got := th.Styles().Notice.GetBackground(); got != lipgloss.Color(th.SurfaceAlt) {
			t.Errorf("%s notice background = %v, want %s", name, got, th.SurfaceAlt)
		}
	}
}
