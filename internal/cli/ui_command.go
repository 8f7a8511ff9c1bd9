package cli

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ffqueue/internal/model"
)

// queueController is the slice of the queue manager the UI drives.
type queueController interface {
	Enqueue(req model.Request) string
	Retry(id string) (string, bool)
	CancelOrRemove(id string) bool
	ArchiveCompleted() int
	ClearHistory()
	SetView(v model.View)
	View() model.View
	Jobs() []model.Job
	History() []model.Job
}

type uiMode int

const (
	uiModeBrowse uiMode = iota
	uiModeForm
	uiModeLogs
	uiModeConfirmClear
	uiModeConfirmQuit
)

type uiModel struct {
	queue   queueController
	changes <-chan struct{}

	jobs    []model.Job
	history []model.Job
	view    model.View
	cursor  int
	width   int
	height  int
	mode    uiMode
	form    *uiForm
	bar     progress.Model

	logsJobID     string
	logsOffset    int
	statusMessage string
	quitting      bool
}

type uiChangedMsg struct{}

var (
	uiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	uiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	uiErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	uiOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	uiPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	uiSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	uiTabStyle   = lipgloss.NewStyle().Padding(0, 1)
	uiTabOnStyle = uiTabStyle.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)

	uiStatusStyles = map[string]lipgloss.Style{
		model.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		model.StatusProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		model.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		model.StatusCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

func runUI(args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	ephemeral := fs.Bool("ephemeral", false, "keep queue state in memory only")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("ui requires an interactive terminal (TTY)")
	}

	rt, err := openRuntime(runtimeOptions{
		ConfigPath: strings.TrimSpace(*configPath),
		Ephemeral:  *ephemeral,
		LogToFile:  true,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	m := rt.manager
	report := m.Restore()
	changes, unsubscribe := m.Subscribe()
	defer unsubscribe()

	ui := newUIModel(m, changes)
	if report.Interrupted > 0 {
		ui.statusMessage = fmt.Sprintf("restored: %d interrupted job(s) marked failed", report.Interrupted)
	}
	if n := len(report.Quarantined) + len(report.Unreadable); n > 0 {
		ui.statusMessage = fmt.Sprintf("error: %d unreadable state document(s) kept aside, see %s", n, logFileName)
	}
	if err := rt.launcher.CheckDependencies(); err != nil {
		ui.statusMessage = "error: " + err.Error()
	}

	p := tea.NewProgram(ui, tea.WithAltScreen())
	_, err = p.Run()
	// leaving the UI stops the worker; pending jobs wait for the next session
	m.Shutdown()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("ui requires an interactive terminal (TTY)")
		}
		return err
	}
	return nil
}

func newUIModel(q queueController, changes <-chan struct{}) uiModel {
	m := uiModel{
		queue:   q,
		changes: changes,
		mode:    uiModeBrowse,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(20)),
	}
	m.refresh()
	return m
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return uiChangedMsg{}
	}
}

func (m uiModel) Init() tea.Cmd {
	return waitForChange(m.changes)
}

func (m *uiModel) refresh() {
	m.jobs = m.queue.Jobs()
	m.history = m.queue.History()
	m.view = m.queue.View()
	total := len(m.visibleJobs())
	if m.cursor > total-1 {
		m.cursor = total - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m uiModel) visibleJobs() []model.Job {
	if m.view == model.ViewHistory {
		return m.history
	}
	return m.jobs
}

func (m uiModel) selectedJob() (model.Job, bool) {
	jobs := m.visibleJobs()
	if m.cursor < 0 || m.cursor >= len(jobs) {
		return model.Job{}, false
	}
	return jobs[m.cursor], true
}

func (m uiModel) findJob(id string) (model.Job, bool) {
	for _, j := range m.jobs {
		if j.ID == id {
			return j, true
		}
	}
	for _, j := range m.history {
		if j.ID == id {
			return j, true
		}
	}
	return model.Job{}, false
}

func (m uiModel) hasActiveJob() bool {
	for _, j := range m.jobs {
		if j.Status == model.StatusProcessing {
			return true
		}
	}
	return false
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = clampInt(m.width/4, 10, 40)
		if m.form != nil {
			m.form.resize(m.width)
		}
		return m, nil
	case uiChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case uiModeBrowse:
		return m.updateBrowse(keyMsg)
	case uiModeForm:
		return m.updateForm(keyMsg)
	case uiModeLogs:
		return m.updateLogs(keyMsg)
	case uiModeConfirmClear:
		return m.updateConfirmClear(keyMsg)
	case uiModeConfirmQuit:
		return m.updateConfirmQuit(keyMsg)
	default:
		return m, nil
	}
}

func (m uiModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	total := len(m.visibleJobs())
	switch msg.String() {
	case "ctrl+c", "q":
		if m.hasActiveJob() {
			m.mode = uiModeConfirmQuit
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < total-1 {
			m.cursor++
		}
		return m, nil
	case "tab", "v":
		next := model.ViewHistory
		if m.view == model.ViewHistory {
			next = model.ViewActive
		}
		m.queue.SetView(next)
		m.cursor = 0
		m.statusMessage = ""
		m.refresh()
		return m, nil
	case "n":
		m.mode = uiModeForm
		m.form = newUIForm(m.width)
		m.statusMessage = ""
		return m, nil
	case "enter", "l":
		job, ok := m.selectedJob()
		if !ok {
			m.statusMessage = "no job selected"
			return m, nil
		}
		m.mode = uiModeLogs
		m.logsJobID = job.ID
		m.logsOffset = 0
		return m, nil
	case "r":
		if m.view != model.ViewActive {
			m.statusMessage = "retry works on the active queue (tab to switch)"
			return m, nil
		}
		job, ok := m.selectedJob()
		if !ok {
			m.statusMessage = "no job selected"
			return m, nil
		}
		if !model.IsTerminal(job.Status) {
			m.statusMessage = "only finished jobs can be retried"
			return m, nil
		}
		if _, ok := m.queue.Retry(job.ID); !ok {
			m.statusMessage = "error: job not found"
			return m, nil
		}
		m.statusMessage = "retry queued: " + job.DisplayName()
		m.refresh()
		return m, nil
	case "x", "d", "delete":
		if m.view != model.ViewActive {
			m.statusMessage = "cancel/remove works on the active queue (tab to switch)"
			return m, nil
		}
		job, ok := m.selectedJob()
		if !ok {
			m.statusMessage = "no job selected"
			return m, nil
		}
		if !m.queue.CancelOrRemove(job.ID) {
			m.statusMessage = "error: job not found"
			return m, nil
		}
		switch {
		case job.Status == model.StatusProcessing:
			m.statusMessage = "cancelled: " + job.DisplayName()
		case model.IsTerminal(job.Status):
			m.statusMessage = "archived: " + job.DisplayName()
		default:
			m.statusMessage = "removed: " + job.DisplayName()
		}
		m.refresh()
		return m, nil
	case "a":
		n := m.queue.ArchiveCompleted()
		m.statusMessage = fmt.Sprintf("archived %d job(s)", n)
		m.refresh()
		return m, nil
	case "C":
		if len(m.history) == 0 {
			m.statusMessage = "history is already empty"
			return m, nil
		}
		m.mode = uiModeConfirmClear
		return m, nil
	}
	return m, nil
}

func (m uiModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = uiModeBrowse
		return m, nil
	}

	key := strings.ToLower(msg.String())
	switch key {
	case "ctrl+c", "esc":
		m.mode = uiModeBrowse
		m.form = nil
		m.statusMessage = "new job cancelled"
		return m, nil
	case "up", "shift+tab":
		m.form.commitInput()
		if m.form.Index > 0 {
			m.form.Index--
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "down", "tab":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "left", "right", " ", "space":
		if m.form.currentField().Kind == uiFieldSelect {
			if key == "left" {
				m.form.stepSelect(-1)
			} else {
				m.form.stepSelect(1)
			}
			return m, nil
		}
	case "enter", "ctrl+s":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 && key != "ctrl+s" {
			m.form.Index++
			m.form.loadFieldIntoInput()
			return m, nil
		}
		req, err := m.form.toRequest()
		if err != nil {
			m.form.Error = err.Error()
			return m, nil
		}
		m.queue.Enqueue(req)
		m.mode = uiModeBrowse
		m.form = nil
		m.statusMessage = "enqueued: " + req.Name
		if m.view != model.ViewActive {
			m.queue.SetView(model.ViewActive)
		}
		m.refresh()
		m.cursor = maxInt(len(m.jobs)-1, 0)
		return m, nil
	}

	if m.form.currentField().Kind == uiFieldSelect {
		return m, nil
	}
	var cmd tea.Cmd
	m.form.Input, cmd = m.form.Input.Update(msg)
	m.form.Fields[m.form.Index].Value = m.form.Input.Value()
	return m, cmd
}

func (m uiModel) updateLogs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "q", "enter", "l":
		m.mode = uiModeBrowse
		m.logsJobID = ""
		return m, nil
	case "up", "k":
		m.logsOffset++
		return m, nil
	case "down", "j":
		if m.logsOffset > 0 {
			m.logsOffset--
		}
		return m, nil
	case "pgup":
		m.logsOffset += m.logRows()
		return m, nil
	case "pgdown":
		m.logsOffset = maxInt(m.logsOffset-m.logRows(), 0)
		return m, nil
	case "G", "end":
		m.logsOffset = 0
		return m, nil
	}
	return m, nil
}

func (m uiModel) updateConfirmClear(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		n := len(m.history)
		m.queue.ClearHistory()
		m.mode = uiModeBrowse
		m.statusMessage = fmt.Sprintf("history cleared: %d job(s) removed", n)
		m.refresh()
		return m, nil
	case "ctrl+c", "esc", "n":
		m.mode = uiModeBrowse
		m.statusMessage = "clear cancelled"
		return m, nil
	}
	return m, nil
}

func (m uiModel) updateConfirmQuit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.quitting = true
		return m, tea.Quit
	case "ctrl+c", "esc", "n":
		m.mode = uiModeBrowse
		return m, nil
	}
	return m, nil
}

func (m uiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case uiModeForm:
		return m.viewForm()
	case uiModeLogs:
		return m.viewLogs()
	case uiModeConfirmClear:
		return m.viewConfirm(fmt.Sprintf("Clear %d archived job(s)?\n\nThis cannot be undone.\n\nPress y or Enter to confirm, n or Esc to cancel.", len(m.history)))
	case uiModeConfirmQuit:
		return m.viewConfirm("A job is still running.\n\nQuitting cancels it; pending jobs are marked\ninterrupted on the next start.\n\nPress y or Enter to quit, n or Esc to stay.")
	default:
		return m.viewBrowse()
	}
}

func (m uiModel) viewBrowse() string {
	active := fmt.Sprintf("Queue (%d)", len(m.jobs))
	hist := fmt.Sprintf("History (%d)", len(m.history))
	var tabs string
	if m.view == model.ViewHistory {
		tabs = uiTabStyle.Render(active) + uiTabOnStyle.Render(hist)
	} else {
		tabs = uiTabOnStyle.Render(active) + uiTabStyle.Render(hist)
	}
	header := uiTitleStyle.Render("ffqueue") + "  " + tabs + "\n" +
		uiMutedStyle.Render("up/down: move | tab: queue/history | n: new | r: retry | x: cancel/remove | a: archive done | C: clear history | enter: logs | q: quit")

	list := m.renderListPanel(m.width)
	details := m.renderDetailsPanel(m.width)
	status := m.renderStatusLine(m.width)
	return lipgloss.JoinVertical(lipgloss.Left, header, list, details, status)
}

func (m uiModel) renderListPanel(width int) string {
	jobs := m.visibleJobs()
	maxRows := clampInt(m.height-16, 3, 20)
	start, end := listWindow(len(jobs), m.cursor, maxRows)

	lines := make([]string, 0, maxRows+2)
	if len(jobs) == 0 {
		if m.view == model.ViewHistory {
			lines = append(lines, uiMutedStyle.Render("No archived jobs."))
		} else {
			lines = append(lines, uiMutedStyle.Render("Queue is empty. Press n to add a job."))
		}
	}
	if start > 0 {
		lines = append(lines, uiMutedStyle.Render("..."))
	}
	nameW := maxInt(width-m.bar.Width-42, 12)
	for i := start; i < end; i++ {
		j := jobs[i]
		status := statusStyle(j.Status).Render(fmt.Sprintf("%-10s", j.Status))
		name := fmt.Sprintf("%-*s", nameW, truncateRunes(j.DisplayName(), nameW))
		line := fmt.Sprintf("%s %s %s %s", status, name, m.bar.ViewAs(float64(j.Progress)/100), truncateRunes(j.Info, 24))
		if i == m.cursor {
			line = uiSelStyle.Width(maxInt(width-4, 6)).Render(
				fmt.Sprintf("%-10s %s %3d%% %s", j.Status, name, j.Progress, truncateRunes(j.Info, 24)))
		}
		lines = append(lines, line)
	}
	if end < len(jobs) {
		lines = append(lines, uiMutedStyle.Render("..."))
	}
	return uiPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m uiModel) renderDetailsPanel(width int) string {
	job, ok := m.selectedJob()
	if !ok {
		return uiPanelStyle.Width(width).Render(uiMutedStyle.Render("Select a job to see its details."))
	}
	lines := []string{
		kv("id", job.ID),
		kv("name", job.DisplayName()),
		kv("type", defaultIfEmpty(job.Type, "-")),
		kv("status", job.Status),
		kv("info", job.Info),
		kv("progress", strconv.Itoa(job.Progress)+"%"),
		kv("command", strings.TrimSpace(job.Command+" "+strings.Join(job.Args, " "))),
		kv("output", defaultIfEmpty(job.Output, "-")),
		kv("created", defaultIfEmpty(job.CreatedAt, "-")),
	}
	if job.ExpectedDuration != nil {
		lines = append(lines, kv("duration", strconv.FormatFloat(*job.ExpectedDuration, 'f', 2, 64)+"s"))
	}
	if job.FinishedAt != "" {
		lines = append(lines, kv("finished", job.FinishedAt))
	}
	if job.CompletedAt != "" {
		lines = append(lines, kv("archived", job.CompletedAt))
	}
	if n := len(job.Logs); n > 0 {
		lines = append(lines, kv("last log", job.Logs[n-1]))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return uiPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m uiModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = "Tip: failed and cancelled jobs stay in the queue until you archive them."
	}
	style := uiMutedStyle
	lower := strings.ToLower(msg)
	if strings.HasPrefix(lower, "error:") {
		style = uiErrorStyle
	} else if strings.HasPrefix(lower, "enqueued") || strings.HasPrefix(lower, "retry") || strings.HasPrefix(lower, "archived") {
		style = uiOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func (m uiModel) logRows() int {
	return clampInt(m.height-8, 5, 200)
}

func (m uiModel) viewLogs() string {
	job, ok := m.findJob(m.logsJobID)
	if !ok {
		return uiErrorStyle.Render("job no longer exists (esc to go back)")
	}
	header := uiTitleStyle.Render("Logs: "+job.DisplayName()) + "  " + statusStyle(job.Status).Render(job.Status+" "+job.Info) + "\n" +
		uiMutedStyle.Render("up/down: scroll | pgup/pgdown: page | G: follow | esc: back")

	rows := m.logRows()
	end := len(job.Logs) - m.logsOffset
	if end < 0 {
		end = 0
	}
	start := maxInt(end-rows, 0)
	lines := make([]string, 0, rows)
	for _, l := range job.Logs[start:end] {
		lines = append(lines, truncateRunes(l, maxInt(m.width-6, 20)))
	}
	if len(lines) == 0 {
		lines = append(lines, uiMutedStyle.Render("(no output yet)"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, uiPanelStyle.Width(m.width).Render(strings.Join(lines, "\n")))
}

func (m uiModel) viewForm() string {
	if m.form == nil {
		return ""
	}
	header := uiTitleStyle.Render("New Job")
	hints := uiMutedStyle.Render("tab/shift+tab or up/down: move | left/right/space: change type | enter: next/enqueue | ctrl+s: enqueue | esc: cancel")

	lines := make([]string, 0, len(m.form.Fields)+6)
	for i, f := range m.form.Fields {
		prefix := "  "
		if i == m.form.Index {
			prefix = "> "
		}
		display := strings.TrimSpace(f.Value)
		if display == "" {
			display = uiMutedStyle.Render("(empty)")
		}
		if f.Kind == uiFieldSelect {
			display = "[" + display + "]"
		}
		lines = append(lines, wrapOrTrim(fmt.Sprintf("%s%s: %s", prefix, f.Label, display), maxInt(m.width-6, 20)))
	}

	curr := m.form.currentField()
	body := strings.Join(lines, "\n") + fmt.Sprintf("\n\n%s\n", curr.Label)
	if strings.TrimSpace(curr.Help) != "" {
		body += uiMutedStyle.Render(curr.Help) + "\n"
	}
	body += m.form.Input.View()
	if strings.TrimSpace(m.form.Error) != "" {
		body += "\n" + uiErrorStyle.Render(m.form.Error)
	}
	panel := uiPanelStyle.Width(maxInt(m.width, 40)).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, hints, panel)
}

func (m uiModel) viewConfirm(text string) string {
	boxW := clampInt(m.width-8, 36, 80)
	boxH := clampInt(m.height-6, 7, 12)
	panel := uiPanelStyle.Width(boxW).Height(boxH).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func statusStyle(status string) lipgloss.Style {
	if s, ok := uiStatusStyles[status]; ok {
		return s
	}
	return uiMutedStyle
}
