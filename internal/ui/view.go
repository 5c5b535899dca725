package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/state"
)

const sidebarWidth = 30

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	styles := m.theme.Styles()

	if m.showHelp {
		return m.renderHelp(styles)
	}

	header := m.renderHeader(styles)
	footer := styles.Footer.Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp()))
	notes := m.renderNotifications(styles)

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - lipgloss.Height(notes)
	mainWidth := max(m.width-sidebarWidth-4, 20)

	main := styles.FocusPanel.Width(mainWidth).Render(m.renderStep(styles, mainWidth-2))
	side := styles.Panel.Width(sidebarWidth).Render(m.renderSidebar(styles))
	body := lipgloss.JoinHorizontal(lipgloss.Top, main, side)
	if bodyHeight > 0 {
		body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)
	}

	parts := []string{header}
	if notes != "" {
		parts = append(parts, notes)
	}
	parts = append(parts, body, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderHeader(styles Styles) string {
	bg := NewBgStyle(m.theme.Surface)

	conn := m.graph.App.Connection
	if m.conn != nil {
		conn = m.conn.State()
	}
	left := bg.Join([]string{
		bg.Render(m.t("app.title"), styles.Logo),
		bg.Render(m.t("app.tagline"), styles.MutedText),
	}, "  ")

	right := bg.Join([]string{
		styles.StatusStyle(string(conn)).Render(m.t("connection." + string(conn))),
		bg.Render(strings.ToUpper(m.graph.UI.Language), styles.FaintText),
		bg.Render(m.theme.Name, styles.FaintText),
	}, " ")

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return styles.Header.Width(m.width).Render(left + bg.Spaces(gap) + right)
}

func (m *Model) renderNotifications(styles Styles) string {
	notes := m.graph.UI.Notifications
	if len(notes) == 0 {
		return ""
	}
	// newest last, at most three
	if len(notes) > 3 {
		notes = notes[len(notes)-3:]
	}
	bg := NewBgStyle(m.theme.SurfaceAlt)
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		text := styles.Text
		if n.Type == state.NotifyInfo {
			text = styles.InfoText
		}
		badge := styles.StatusStyle(string(n.Type)).Render(string(n.Type))
		lines = append(lines, badge+bg.Spaces(1)+bg.Render(n.Message, text))
	}
	return styles.Notice.Width(m.width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderStep(styles Styles, width int) string {
	var b strings.Builder
	b.WriteString(m.renderBreadcrumb(styles))
	b.WriteString("\n\n")

	switch m.graph.UI.CurrentStep {
	case state.StepIntent:
		m.renderIntent(&b, styles)
	case state.StepUpload:
		m.renderUpload(&b, styles, width)
	case state.StepProcessing:
		m.renderProcessing(&b, styles, width)
	case state.StepResults:
		m.renderResults(&b, styles, width)
	}
	return b.String()
}

func (m *Model) renderBreadcrumb(styles Styles) string {
	steps := []state.Step{state.StepIntent, state.StepUpload, state.StepProcessing, state.StepResults}
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		label := m.t("step." + string(s))
		if s == m.graph.UI.CurrentStep {
			parts = append(parts, styles.AccentText.Render(label))
		} else {
			parts = append(parts, styles.FaintText.Render(label))
		}
	}
	return strings.Join(parts, styles.FaintText.Render(" › "))
}

func (m *Model) renderIntent(b *strings.Builder, styles Styles) {
	for i, intent := range m.intents {
		label := m.t("intent." + intent)
		if i == m.cursor {
			b.WriteString(styles.Selected.Render("› " + label))
		} else {
			b.WriteString(styles.Text.Render("  " + label))
		}
		b.WriteString("\n")
	}
}

func (m *Model) renderUpload(b *strings.Builder, styles Styles, width int) {
	v := m.graph.Video
	fmt.Fprintf(b, "%s %s\n\n", styles.MutedText.Render(m.t("step.intent")+":"), styles.Text.Render(m.t("intent."+m.graph.UI.SelectedIntent)))
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case v.UploadError != "":
		b.WriteString(styles.DangerText.Render(v.UploadError))
	case v.IsUploading:
		b.WriteString(m.spinner.View() + " " + styles.Text.Render(m.t("loading.uploading")+" "+truncateMiddle(v.Current.Name, width/2)))
		b.WriteString("\n")
		b.WriteString(renderProgressBar(v.UploadProgress, max(width-8, 10), styles))
		fmt.Fprintf(b, " %3.0f%%", v.UploadProgress)
	}
}

func (m *Model) renderProcessing(b *strings.Builder, styles Styles, width int) {
	v := m.graph.Video
	if v.JobID == "" {
		b.WriteString(styles.MutedText.Render(m.t("job.none")))
		return
	}
	status := api.JobProcessing
	if v.ProcessingError != "" {
		status = api.JobFailed
	}
	fmt.Fprintf(b, "%s %s  %s\n", styles.MutedText.Render(m.t("job.title")), styles.Text.Render(v.JobID), styles.StatusStyle(status).Render(status))
	if name := v.Current.Name; name != "" {
		b.WriteString(styles.FaintText.Render(truncateMiddle(name, width)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if v.ProcessingError != "" {
		b.WriteString(styles.DangerText.Render(v.ProcessingError))
		return
	}

	stage := v.ProcessingStage
	if stage == "" {
		stage = m.graph.UI.LoadingMessage
	}
	if m.graph.UI.Loading {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(styles.Text.Render(stage))
	b.WriteString("\n")
	b.WriteString(renderProgressBar(v.ProcessingProgress, max(width-8, 10), styles))
	fmt.Fprintf(b, " %3.0f%%", v.ProcessingProgress)

	if !m.lastLive.at.IsZero() {
		ago := humanizeDuration(time.Since(m.lastLive.at))
		fmt.Fprintf(b, "\n%s", styles.FaintText.Render(m.lastLive.source+" · "+ago))
	}
}

func (m *Model) renderResults(b *strings.Builder, styles Styles, width int) {
	clips := m.graph.Video.Clips
	b.WriteString(styles.SuccessText.Render(m.t("job.clips", len(clips))))
	b.WriteString("\n\n")
	for i, c := range clips {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		line := fmt.Sprintf("%-*s %8s", max(width-12, 10), truncateMiddle(title, max(width-12, 10)), formatClock(c.Duration()))
		if i == m.clipCursor {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString("\n")
	}
	if len(clips) > 0 {
		if url := clips[m.clipCursor].URL; url != "" {
			b.WriteString("\n")
			b.WriteString(styles.FaintText.Render(url))
		}
	}
}

func (m *Model) renderSidebar(styles Styles) string {
	var b strings.Builder
	app := m.graph.App

	b.WriteString(styles.AccentText.Render(m.t("queue.title")))
	b.WriteString("\n")
	if !app.HasQueueStats {
		b.WriteString(styles.FaintText.Render(m.t("queue.none")))
	} else {
		q := app.QueueStats
		rows := []struct {
			key    string
			status string
			n      int
		}{
			{"queue.pending", api.JobQueued, q.Pending},
			{"queue.processing", api.JobProcessing, q.Processing},
			{"queue.completed", api.JobCompleted, q.Completed},
			{"queue.failed", api.JobFailed, q.Failed},
		}
		for _, r := range rows {
			dot := lipgloss.NewStyle().Foreground(lipgloss.Color(styles.StatusColor(r.status))).Render("●")
			fmt.Fprintf(&b, "%s %-12s %4d\n", dot, m.t(r.key), r.n)
		}
		b.WriteString(styles.MutedText.Render(m.t("queue.workers", q.ActiveWorkers, q.TotalWorkers)))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.AccentText.Render(m.t("agents.title")))
	b.WriteString("\n")
	if len(app.Agents) == 0 {
		b.WriteString(styles.FaintText.Render(m.t("agents.none")))
	}
	for _, a := range app.Agents {
		style := styles.DangerText
		if a.Healthy() {
			style = styles.SuccessText
		}
		fmt.Fprintf(&b, "%s %s\n", style.Render("●"), truncateMiddle(a.Name, sidebarWidth-4))
	}

	if app.LastError != "" {
		b.WriteString("\n")
		b.WriteString(styles.WarningText.Render(truncateMiddle(app.LastError, sidebarWidth-2)))
	}
	return b.String()
}

func (m *Model) renderHelp(styles Styles) string {
	m.help.ShowAll = true
	body := m.help.View(m.keys)
	m.help.ShowAll = false
	box := styles.FocusPanel.Render(styles.AccentText.Render(m.t("app.title")) + "\n\n" + body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// renderProgressBar renders a text progress bar without percentage text.
func renderProgressBar(percent float64, width int, styles Styles) string {
	percent = min(max(percent, 0), 100)
	filled := min(int(float64(width)*percent/100), width)
	return styles.AccentText.Render(strings.Repeat("█", filled)) + styles.FaintText.Render(strings.Repeat("░", width-filled))
}
