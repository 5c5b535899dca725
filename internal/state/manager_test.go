package state

import (
	"errors"
	"fmt"
	"testing"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/realtime"
)

type fakeTranslator struct{ lang string }

func (f *fakeTranslator) T(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return key + ":" + fmt.Sprint(args...)
}

func (f *fakeTranslator) SetLanguage(lang string) { f.lang = lang }

func newTestManager(t *testing.T) (*Manager, *fakeTranslator) {
	t.Helper()
	tr := &fakeTranslator{}
	m := NewManager(ManagerOptions{
		PrefsDir:   t.TempDir(),
		Translator: tr,
		Logger:     logging.Discard(),
	})
	t.Cleanup(m.Close)
	return m, tr
}

func notificationsOfType(g Graph, typ NotificationType) []Notification {
	var out []Notification
	for _, n := range g.UI.Notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestManager_SelectIntentNavigatesToUpload(t *testing.T) {
	m, _ := newTestManager(t)

	var seen []Graph
	off := m.Subscribe(func(g Graph) { seen = append(seen, g) })
	defer off()

	m.SelectIntent("short_clips")

	g := m.Snapshot()
	if g.UI.SelectedIntent != "short_clips" || g.UI.CurrentStep != StepUpload {
		t.Fatalf("ui = %#v", g.UI)
	}
	last := seen[len(seen)-1]
	if last.UI.CurrentStep != StepUpload || last.UI.SelectedIntent != "short_clips" {
		t.Fatalf("subscriber saw step %q intent %q", last.UI.CurrentStep, last.UI.SelectedIntent)
	}
	for _, g := range seen {
		if g.UI.CurrentStep == StepUpload && g.UI.SelectedIntent == "" {
			t.Fatal("navigation observed before intent was set")
		}
	}
}

func TestManager_ProcessingFlow(t *testing.T) {
	m, _ := newTestManager(t)

	m.SelectIntent("short_clips")
	m.StartVideoUpload(VideoSource{Name: "talk.mp4", Path: "/tmp/talk.mp4", Size: 10})
	m.StartProcessing("job-1")

	g := m.Snapshot()
	if !g.UI.Loading || g.UI.LoadingMessage != "loading.processing" {
		t.Fatalf("loading = %v %q, want on", g.UI.Loading, g.UI.LoadingMessage)
	}
	if g.UI.CurrentStep != StepProcessing || g.Video.JobID != "job-1" || g.Video.IsUploading {
		t.Fatalf("after StartProcessing: ui=%#v video=%#v", g.UI, g.Video)
	}

	m.ShowResults([]api.Clip{{ID: "c1"}, {ID: "c2"}})

	g = m.Snapshot()
	if g.UI.Loading {
		t.Fatal("loading still on after results")
	}
	if g.UI.CurrentStep != StepResults || len(g.Video.Clips) != 2 {
		t.Fatalf("results state: step=%q clips=%d", g.UI.CurrentStep, len(g.Video.Clips))
	}
	success := notificationsOfType(g, NotifySuccess)
	if len(success) != 1 {
		t.Fatalf("success notifications = %d, want exactly 1", len(success))
	}
	if success[0].Message != "notify.processing_complete:2" {
		t.Fatalf("success message = %q", success[0].Message)
	}
}

func TestManager_ProcessingFailure(t *testing.T) {
	m, _ := newTestManager(t)

	m.StartProcessing("job-2")
	m.FailJob(errors.New("decoder crashed"))

	g := m.Snapshot()
	if g.UI.Loading {
		t.Fatal("loading still on after failure")
	}
	if len(notificationsOfType(g, NotifySuccess)) != 0 {
		t.Fatal("failure produced a success notification")
	}
	errs := notificationsOfType(g, NotifyError)
	if len(errs) != 1 || errs[0].Message != "notify.processing_failed:decoder crashed" {
		t.Fatalf("error notifications = %#v", errs)
	}
}

func TestManager_UploadFailureNotifies(t *testing.T) {
	m, _ := newTestManager(t)

	m.StartVideoUpload(VideoSource{Name: "a.mp4"})
	m.FailUpload(errors.New("413"))
	m.FailUpload(errors.New("413"))

	if errs := notificationsOfType(m.Snapshot(), NotifyError); len(errs) != 1 {
		t.Fatalf("error notifications = %d, want 1 for one distinct failure", len(errs))
	}
}

func TestManager_ConnectionRules(t *testing.T) {
	m, _ := newTestManager(t)

	m.App().SetConnectionState(realtime.StateConnecting)
	m.App().SetConnectionState(realtime.StatePolling)
	m.App().SetConnectionState(realtime.StatePolling)
	m.App().SetConnectionState(realtime.StateConnected)

	g := m.Snapshot()
	if n := len(notificationsOfType(g, NotifyWarning)); n != 1 {
		t.Fatalf("warnings = %d, want 1", n)
	}
	if n := len(notificationsOfType(g, NotifyInfo)); n != 1 {
		t.Fatalf("info = %d, want 1 for restored live connection", n)
	}
}

func TestManager_BackToIntentResetsSession(t *testing.T) {
	m, _ := newTestManager(t)

	m.SelectIntent("highlights")
	m.StartVideoUpload(VideoSource{Name: "a.mp4"})
	m.StartProcessing("job-3")
	m.BackToIntent()

	g := m.Snapshot()
	if g.UI.CurrentStep != StepIntent || g.UI.SelectedIntent != "" || len(g.UI.History) != 0 {
		t.Fatalf("ui not reset: %#v", g.UI)
	}
	if g.Video.JobID != "" || g.Video.IsProcessing || !g.Video.Current.IsZero() {
		t.Fatalf("video not reset: %#v", g.Video)
	}
	if g.UI.Loading {
		t.Fatal("loading left on after going back")
	}
}

func TestManager_ChangeLanguage(t *testing.T) {
	m, tr := newTestManager(t)

	m.ChangeLanguage("es")
	if tr.lang != "es" || m.Snapshot().UI.Language != "es" {
		t.Fatalf("translator=%q ui=%q, want es", tr.lang, m.Snapshot().UI.Language)
	}
}

func TestManager_DefaultLanguageYieldsToSavedChoice(t *testing.T) {
	dir := t.TempDir()
	open := func(lang string) (*Manager, *fakeTranslator) {
		tr := &fakeTranslator{}
		m := NewManager(ManagerOptions{
			PrefsDir:        dir,
			DefaultLanguage: lang,
			Translator:      tr,
			Logger:          logging.Discard(),
		})
		t.Cleanup(m.Close)
		return m, tr
	}

	first, tr := open("es")
	if got := first.Snapshot().UI.Language; got != "es" || tr.lang != "es" {
		t.Fatalf("fresh start language = %q translator = %q, want es", got, tr.lang)
	}

	first.ChangeLanguage("en")
	first.Close()

	second, tr := open("es")
	if got := second.Snapshot().UI.Language; got != "en" || tr.lang != "en" {
		t.Fatalf("restart language = %q translator = %q, want saved en", got, tr.lang)
	}
}

func TestManager_ResetAll(t *testing.T) {
	m, _ := newTestManager(t)

	m.App().SetFeature("live", true)
	m.App().SetLastError("x")
	m.SelectIntent("short_clips")
	m.StartProcessing("job-4")
	m.ResetAll()

	g := m.Snapshot()
	if g.UI.CurrentStep != StepIntent || g.Video.JobID != "" || g.App.LastError != "" {
		t.Fatalf("ResetAll left state: %#v", g)
	}
	if !g.App.FeatureEnabled("live") {
		t.Fatal("ResetAll dropped feature flags")
	}
}

func TestManager_SubscribeUnsubscribe(t *testing.T) {
	m, _ := newTestManager(t)

	calls := 0
	off := m.Subscribe(func(Graph) { calls++ })
	m.UI().SetTheme("Nord")
	m.Video().SetJobID("j")
	m.App().SetLastError("e")
	off()
	off()
	m.UI().SetTheme("Slate")

	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
