// Package tui renders the interactive kanban board over the lifecycle engine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sort"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/board"
	"github.com/hylla/fordela/internal/domain"
)

// Service represents the engine operations the board consumes.
type Service interface {
	ListProjectSummaries(context.Context, bool, app.PageRequest) (app.Page[app.ProjectSummary], error)
	ListTasks(context.Context, string, app.PageRequest) (app.Page[domain.Task], error)
	CreateTask(context.Context, app.CreateTaskInput) (domain.Task, error)
	AssignTask(context.Context, string, string) (domain.Task, error)
	CompleteTask(context.Context, string) (domain.Task, error)
	UnassignTask(context.Context, string) (domain.Task, error)
	ListEngineers(context.Context) ([]app.EngineerStatus, error)
	Recommendations(context.Context, string, int) ([]domain.Recommendation, error)
}

// inputMode represents a selectable mode.
type inputMode int

// modeNone and related constants define package defaults.
const (
	modeNone inputMode = iota
	modeAddTask
	modeAssign
	modeTaskInfo
)

// boardColumns fixes the column order rendered left to right.
var boardColumns = []domain.Status{
	domain.StatusOpen,
	domain.StatusInProgress,
	domain.StatusDone,
}

// columnTitles maps statuses to their board headings.
var columnTitles = map[domain.Status]string{
	domain.StatusOpen:       "Open",
	domain.StatusInProgress: "In Progress",
	domain.StatusDone:       "Done",
}

// candidate is one row in the assignment picker: an engineer plus an
// optional recommendation score.
type candidate struct {
	ID           string
	Name         string
	Availability domain.Availability
	Score        float64
	Recommended  bool
}

// loadedMsg carries one full board refresh.
type loadedMsg struct {
	projectID   string
	projectName string
	view        board.View
	err         error
}

// mutationMsg carries the outcome of one server-side task mutation.
// taskID names the task the mutation was issued for, so a reply can be
// matched to the staged move it belongs to.
type mutationMsg struct {
	taskID string
	task   domain.Task
	err    error
}

// taskCreatedMsg carries the outcome of a task creation.
type taskCreatedMsg struct {
	task domain.Task
	err  error
}

// candidatesMsg carries the assignment picker contents.
type candidatesMsg struct {
	candidates []candidate
	gatewayOff bool
	err        error
}

// Model drives the board: it holds the authoritative view plus at most one
// staged optimistic move awaiting server confirmation.
type Model struct {
	svc  Service
	keys keyMap
	help help.Model
	md   markdownRenderer

	projectID        string
	projectName      string
	showDescriptions bool

	view   board.View
	staged *board.Staged

	selectedColumn int
	selectedTask   int

	mode          inputMode
	titleInput    textinput.Model
	candidates    []candidate
	candidateIdx  int
	pendingTaskID string
	infoTaskID    string
	gatewayOff    bool

	width  int
	height int
	ready  bool
	status string
	err    error
}

// NewModel constructs a board model over the engine.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	titleInput := textinput.New()
	titleInput.Prompt = "title: "
	titleInput.Placeholder = "what needs doing?"
	titleInput.CharLimit = 200

	m := Model{
		svc:              svc,
		keys:             newKeyMap(),
		help:             h,
		titleInput:       titleInput,
		showDescriptions: true,
		status:           "loading...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.projectID = msg.projectID
		m.projectName = msg.projectName
		m.view = msg.view
		m.staged = nil
		m.clampSelection()
		if m.projectID == "" {
			m.status = "no active projects"
		} else if m.status == "" || m.status == "loading..." || m.status == "reloading..." {
			m.status = "ready"
		}
		return m, nil

	case mutationMsg:
		// Only the staged drag's own reply may settle it; an unrelated
		// mutation finishing mid-confirmation leaves the stage pending.
		if m.staged != nil && msg.taskID == m.staged.Drag().TaskID {
			if msg.err != nil {
				m.view = m.staged.Rollback()
				m.status = "move rejected: " + mutationStatus(msg.err)
			} else {
				m.view = m.staged.Commit(msg.task)
				m.status = "moved to " + columnTitles[msg.task.Status]
			}
			m.staged = nil
			m.clampSelection()
			return m, nil
		}
		if msg.err != nil {
			m.status = mutationStatus(msg.err)
			return m, nil
		}
		m.view = m.viewWithTask(msg.task)
		m.status = "assigned to " + msg.task.AssigneeID
		m.clampSelection()
		return m, nil

	case taskCreatedMsg:
		if msg.err != nil {
			m.status = "create failed: " + mutationStatus(msg.err)
			return m, nil
		}
		m.status = "created " + msg.task.Title
		return m, m.loadData

	case candidatesMsg:
		if msg.err != nil {
			m.mode = modeNone
			m.pendingTaskID = ""
			m.status = "candidates unavailable: " + msg.err.Error()
			return m, nil
		}
		m.candidates = msg.candidates
		m.candidateIdx = 0
		m.gatewayOff = msg.gatewayOff
		if len(m.candidates) == 0 {
			m.mode = modeNone
			m.pendingTaskID = ""
			m.status = "no engineers registered"
		}
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	default:
		return m, nil
	}
}

// handleNormalModeKey routes board-level key presses.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.moveLeft):
		if m.selectedColumn > 0 {
			m.selectedColumn--
			m.clampSelection()
		}
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		if m.selectedColumn < len(boardColumns)-1 {
			m.selectedColumn++
			m.clampSelection()
		}
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		if m.selectedTask > 0 {
			m.selectedTask--
		}
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		if m.selectedTask < len(m.selectedColumnTasks())-1 {
			m.selectedTask++
		}
		return m, nil
	case key.Matches(msg, m.keys.addTask):
		if m.projectID == "" {
			m.status = "no project to add tasks to"
			return m, nil
		}
		m.mode = modeAddTask
		m.titleInput.SetValue("")
		return m, m.titleInput.Focus()
	case key.Matches(msg, m.keys.taskInfo):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		m.mode = modeTaskInfo
		m.infoTaskID = task.ID
		return m, nil
	case key.Matches(msg, m.keys.assignTask):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		if task.Status != domain.StatusOpen {
			m.status = "only open tasks can be assigned"
			return m, nil
		}
		return m.startAssignPicker(task)
	case key.Matches(msg, m.keys.moveTaskRight):
		return m.stageMove(1)
	case key.Matches(msg, m.keys.moveTaskLeft):
		return m.stageMove(-1)
	default:
		return m, nil
	}
}

// handleInputModeKey routes key presses inside overlays.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeTaskInfo:
		switch msg.String() {
		case "esc", "i", "enter", "q":
			m.mode = modeNone
			m.infoTaskID = ""
		}
		return m, nil

	case modeAddTask:
		switch msg.String() {
		case "esc":
			m.mode = modeNone
			m.titleInput.Blur()
			m.status = "ready"
			return m, nil
		case "enter":
			title := strings.TrimSpace(m.titleInput.Value())
			if title == "" {
				m.status = "title is required"
				return m, nil
			}
			m.mode = modeNone
			m.titleInput.Blur()
			projectID := m.projectID
			return m, func() tea.Msg {
				task, err := m.svc.CreateTask(context.Background(), app.CreateTaskInput{
					ProjectID: projectID,
					Title:     title,
				})
				return taskCreatedMsg{task: task, err: err}
			}
		default:
			var cmd tea.Cmd
			m.titleInput, cmd = m.titleInput.Update(msg)
			return m, cmd
		}

	case modeAssign:
		switch msg.String() {
		case "esc":
			m.mode = modeNone
			m.pendingTaskID = ""
			m.status = "ready"
			return m, nil
		case "j", "down":
			if m.candidateIdx < len(m.candidates)-1 {
				m.candidateIdx++
			}
			return m, nil
		case "k", "up":
			if m.candidateIdx > 0 {
				m.candidateIdx--
			}
			return m, nil
		case "enter":
			if len(m.candidates) == 0 {
				return m, nil
			}
			chosen := m.candidates[m.candidateIdx]
			taskID := m.pendingTaskID
			m.mode = modeNone
			m.pendingTaskID = ""
			m.status = "assigning to " + chosen.Name + "..."
			return m, func() tea.Msg {
				task, err := m.svc.AssignTask(context.Background(), taskID, chosen.ID)
				return mutationMsg{taskID: taskID, task: task, err: err}
			}
		default:
			return m, nil
		}

	default:
		m.mode = modeNone
		return m, nil
	}
}

// stageMove runs the drag protocol for the selected task: validate and
// apply locally, then confirm against the engine, rolling back on failure.
func (m Model) stageMove(dir int) (tea.Model, tea.Cmd) {
	if m.staged != nil {
		m.status = "previous move still confirming"
		return m, nil
	}
	task, ok := m.currentTask()
	if !ok {
		return m, nil
	}
	target := m.selectedColumn + dir
	if target < 0 || target >= len(boardColumns) {
		return m, nil
	}
	drag := board.Drag{
		TaskID: task.ID,
		From:   boardColumns[m.selectedColumn],
		To:     boardColumns[target],
	}

	staged, err := board.Stage(m.view, drag)
	switch {
	case errors.Is(err, board.ErrAssigneeRequired):
		// The engine never accepts a bare status move into In Progress;
		// route through the assignment picker instead.
		return m.startAssignPicker(task)
	case errors.Is(err, board.ErrIllegalMove):
		m.status = fmt.Sprintf("cannot move %s task to %s", columnTitles[drag.From], columnTitles[drag.To])
		return m, nil
	case err != nil:
		m.status = err.Error()
		return m, nil
	}
	if staged.NoOp() {
		return m, nil
	}

	m.staged = &staged
	m.view = staged.View()
	m.selectedColumn = target
	m.focusTask(task.ID)
	m.status = "moving..."

	return m, func() tea.Msg {
		var (
			confirmed domain.Task
			mutErr    error
		)
		switch drag.To {
		case domain.StatusDone:
			confirmed, mutErr = m.svc.CompleteTask(context.Background(), drag.TaskID)
		case domain.StatusOpen:
			confirmed, mutErr = m.svc.UnassignTask(context.Background(), drag.TaskID)
		default:
			mutErr = board.ErrIllegalMove
		}
		return mutationMsg{taskID: drag.TaskID, task: confirmed, err: mutErr}
	}
}

// startAssignPicker opens the candidate overlay for one open task.
func (m Model) startAssignPicker(task domain.Task) (tea.Model, tea.Cmd) {
	if m.staged != nil {
		m.status = "previous move still confirming"
		return m, nil
	}
	m.mode = modeAssign
	m.pendingTaskID = task.ID
	m.candidates = nil
	m.candidateIdx = 0
	m.status = "loading candidates..."
	taskID := task.ID
	return m, func() tea.Msg {
		return m.loadCandidates(taskID)
	}
}

// loadCandidates merges the team roster with gateway recommendations.
// A dead gateway degrades to the plain roster rather than failing.
func (m Model) loadCandidates(taskID string) tea.Msg {
	ctx := context.Background()
	team, err := m.svc.ListEngineers(ctx)
	if err != nil {
		return candidatesMsg{err: err}
	}

	scores := map[string]float64{}
	gatewayOff := false
	recs, recErr := m.svc.Recommendations(ctx, taskID, app.DefaultRecommendationLimit)
	if recErr != nil {
		gatewayOff = true
	} else {
		for _, rec := range recs {
			scores[rec.EngineerID] = rec.Score
		}
	}

	out := make([]candidate, 0, len(team))
	for _, member := range team {
		score, recommended := scores[member.Engineer.ID]
		out = append(out, candidate{
			ID:           member.Engineer.ID,
			Name:         member.Engineer.Name,
			Availability: member.Availability,
			Score:        score,
			Recommended:  recommended,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Recommended != out[j].Recommended {
			return out[i].Recommended
		}
		if out[i].Recommended && out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return candidatesMsg{candidates: out, gatewayOff: gatewayOff}
}

// loadData refreshes the whole board from the engine.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	projectID := m.projectID
	projectName := m.projectName
	if projectID == "" || projectName == "" {
		page, err := m.svc.ListProjectSummaries(ctx, false, app.PageRequest{})
		if err != nil {
			return loadedMsg{err: err}
		}
		if projectID == "" {
			if len(page.Items) == 0 {
				return loadedMsg{view: board.NewView(nil)}
			}
			projectID = page.Items[0].Project.ID
		}
		for _, summary := range page.Items {
			if summary.Project.ID == projectID {
				projectName = summary.Project.Name
			}
		}
	}

	tasks := []domain.Task{}
	for pageID := 1; ; pageID++ {
		page, err := m.svc.ListTasks(ctx, projectID, app.PageRequest{ID: pageID})
		if err != nil {
			return loadedMsg{err: err}
		}
		tasks = append(tasks, page.Items...)
		if len(tasks) >= page.TotalCount || len(page.Items) == 0 {
			break
		}
	}
	return loadedMsg{
		projectID:   projectID,
		projectName: projectName,
		view:        board.NewView(tasks),
	}
}

// viewWithTask rebuilds the view with one confirmed row replacing its
// predecessor.
func (m Model) viewWithTask(confirmed domain.Task) board.View {
	tasks := m.view.Tasks()
	for i := range tasks {
		if tasks[i].ID == confirmed.ID {
			tasks[i] = confirmed
		}
	}
	return board.NewView(tasks)
}

// selectedColumnTasks returns the tasks in the focused column.
func (m Model) selectedColumnTasks() []domain.Task {
	return m.view.Column(boardColumns[m.selectedColumn])
}

// currentTask returns the focused task, if any.
func (m Model) currentTask() (domain.Task, bool) {
	tasks := m.selectedColumnTasks()
	if m.selectedTask < 0 || m.selectedTask >= len(tasks) {
		return domain.Task{}, false
	}
	return tasks[m.selectedTask], true
}

// focusTask moves the row cursor to one task inside the focused column.
func (m *Model) focusTask(taskID string) {
	for idx, task := range m.selectedColumnTasks() {
		if task.ID == taskID {
			m.selectedTask = idx
			return
		}
	}
	m.clampSelection()
}

// clampSelection keeps cursors inside the current column bounds.
func (m *Model) clampSelection() {
	if m.selectedColumn < 0 {
		m.selectedColumn = 0
	}
	if m.selectedColumn >= len(boardColumns) {
		m.selectedColumn = len(boardColumns) - 1
	}
	count := len(m.selectedColumnTasks())
	if m.selectedTask >= count {
		m.selectedTask = count - 1
	}
	if m.selectedTask < 0 {
		m.selectedTask = 0
	}
}

// mutationStatus trims engine errors for the one-line status bar.
func mutationStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrEngineerUnavailable):
		return "engineer already has an active task"
	case errors.Is(err, domain.ErrProjectArchived):
		return "project is archived"
	case errors.Is(err, domain.ErrMutationInProgress):
		return "task is busy, retry shortly"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "transition not allowed"
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}

// View handles view.
func (m Model) View() tea.View {
	var v tea.View
	switch {
	case m.err != nil:
		v = tea.NewView("error: " + m.err.Error() + "\n\npress r to retry, q to quit\n")
	case !m.ready:
		v = tea.NewView("loading...")
	default:
		v = tea.NewView(m.renderContent())
	}
	v.AltScreen = true
	return v
}

// renderContent assembles the full board frame.
func (m Model) renderContent() string {
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	accent := lipgloss.Color("62")

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	header := titleStyle.Render("fordela")
	if m.projectName != "" {
		header += statusStyle.Render("  ·  " + m.projectName)
	}

	columns := make([]string, 0, len(boardColumns))
	colWidth := m.columnWidth()
	for idx, status := range boardColumns {
		columns = append(columns, m.renderColumn(idx, status, colWidth, accent, muted, dim))
	}
	boardRow := lipgloss.JoinHorizontal(lipgloss.Top, columns...)

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		Padding(0, 1).
		Render(helpBubble.View(m.keys))

	sections := []string{header, "", boardRow, "", statusStyle.Render(m.status), helpLine}
	content := strings.Join(sections, "\n")

	if overlay := m.renderOverlay(accent, muted, dim); overlay != "" {
		content = content + "\n\n" + overlay
	}
	return content
}

// columnWidth splits usable width across the three columns.
func (m Model) columnWidth() int {
	if m.width <= 0 {
		return 28
	}
	w := (m.width - 4) / len(boardColumns)
	if w < 20 {
		w = 20
	}
	return w
}

// renderColumn renders one status column with its cards.
func (m Model) renderColumn(idx int, status domain.Status, width int, accent, muted, dim color.Color) string {
	tasks := m.view.Column(status)
	headingStyle := lipgloss.NewStyle().Bold(true).Foreground(muted)
	if idx == m.selectedColumn {
		headingStyle = headingStyle.Foreground(accent)
	}
	lines := []string{headingStyle.Render(fmt.Sprintf("%s (%d)", columnTitles[status], len(tasks)))}

	cardStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	metaStyle := lipgloss.NewStyle().Foreground(dim)

	for taskIdx, task := range tasks {
		marker := "  "
		style := cardStyle
		if idx == m.selectedColumn && taskIdx == m.selectedTask {
			marker = "> "
			style = selectedStyle
		}
		title := truncate(task.Title, width-4)
		lines = append(lines, style.Render(marker+title))

		meta := string(task.Priority)
		if task.AssigneeID != "" {
			meta += " · " + task.AssigneeID
		}
		lines = append(lines, metaStyle.Render("  "+truncate(meta, width-4)))
		if m.showDescriptions && strings.TrimSpace(task.Description) != "" {
			lines = append(lines, metaStyle.Render("  "+truncate(task.Description, width-4)))
		}
	}
	if len(tasks) == 0 {
		lines = append(lines, metaStyle.Render("  (empty)"))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

// renderOverlay renders the active modal, if any.
func (m Model) renderOverlay(accent, muted, dim color.Color) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1)
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle := lipgloss.NewStyle().Foreground(muted)

	switch m.mode {
	case modeAddTask:
		return boxStyle.Render(labelStyle.Render("New task") + "\n" + m.titleInput.View() + "\n" + mutedStyle.Render("enter save · esc cancel"))

	case modeAssign:
		lines := []string{labelStyle.Render("Assign to")}
		if m.gatewayOff {
			lines = append(lines, mutedStyle.Render("recommendations unavailable, showing roster"))
		}
		for idx, c := range m.candidates {
			marker := "  "
			style := mutedStyle
			if idx == m.candidateIdx {
				marker = "> "
				style = labelStyle
			}
			row := c.Name
			if c.Recommended {
				row += fmt.Sprintf(" (%.2f)", c.Score)
			}
			if c.Availability == domain.AvailabilityBusy {
				row += " [busy]"
			}
			lines = append(lines, style.Render(marker+row))
		}
		lines = append(lines, mutedStyle.Render("enter assign · esc cancel"))
		return boxStyle.Render(strings.Join(lines, "\n"))

	case modeTaskInfo:
		task, ok := m.taskByID(m.infoTaskID)
		if !ok {
			return ""
		}
		body := labelStyle.Render(task.Title) + "\n" +
			mutedStyle.Render(fmt.Sprintf("%s · %s", task.Priority, columnTitles[task.Status]))
		if task.AssigneeID != "" {
			body += mutedStyle.Render(" · " + task.AssigneeID)
		}
		if desc := m.md.render(task.Description, m.width-12); desc != "" {
			body += "\n\n" + desc
		}
		return boxStyle.Render(body)

	default:
		return ""
	}
}

// taskByID finds one task anywhere on the board.
func (m Model) taskByID(taskID string) (domain.Task, bool) {
	for _, task := range m.view.Tasks() {
		if task.ID == taskID {
			return task, true
		}
	}
	return domain.Task{}, false
}

// truncate shortens one line to fit a column width.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width < 4 {
		width = 4
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
