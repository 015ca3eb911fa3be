// Package tui provides the interactive Bubble Tea dashboard for sitebook.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
	"github.com/theirongolddev/sitebook/internal/provider"
	"github.com/theirongolddev/sitebook/internal/tui/components"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// Session is the provider surface the dashboard drives.
type Session interface {
	Get() provider.State
	Subscribe(buffer int) (<-chan provider.State, func())
	Init(ctx context.Context) error
	Login(ctx context.Context, username, password string) model.AuthResult
	Logout(ctx context.Context)
	RefreshData(ctx context.Context, silent bool) error
}

// Mutator applies status changes from the list tabs.
type Mutator interface {
	UpdateTaskStatus(ctx context.Context, id int64, status string) error
	UpdatePhaseStatus(ctx context.Context, id int64, status string) error
	UpdatePermitStatus(ctx context.Context, id int64, status string) error
}

// Options configures NewApp. Session is required.
type Options struct {
	Session   Session
	Mutator   Mutator
	Config    config.Config
	NeedSetup bool
	Logger    *zap.Logger
	Now       func() time.Time
}

type stateMsg provider.State

type initDoneMsg struct{ err error }

type loginDoneMsg struct{ res model.AuthResult }

type logoutDoneMsg struct{}

type refreshDoneMsg struct{ err error }

type mutationDoneMsg struct {
	what string
	err  error
}

type tickMsg struct{}

// Tab indexes, matching components.Tabs.
const (
	tabOverview = iota
	tabBudget
	tabTasks
	tabPhases
	tabInventory
	tabPermits
)

// App is the root Bubble Tea model.
type App struct {
	session Session
	mutator Mutator
	cfg     config.Config
	log     *zap.Logger
	now     func() time.Time

	ctx    context.Context
	stop   context.CancelFunc
	states <-chan provider.State
	unsub  func()

	// Data
	st          provider.State
	derived     model.Derived
	monthly     []model.MonthlySpend
	initialized bool

	// Auto-refresh state
	autoRefresh     bool
	refreshInterval time.Duration
	refreshing      bool

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool
	flash     string
	cursors   [6]int

	taskFilter string // "" shows every status

	// Forms
	setupForm *huh.Form
	setupVals *setupValues
	needSetup bool
	loginForm *huh.Form
	loginVals *loginValues
	loggingIn bool

	spinner spinner.Model
}

const (
	minTerminalWidth = 80
	compactWidth     = 120
	maxContentWidth  = 180

	minContentHeight = 5

	stateBuffer = 16
)

// NewApp creates a new TUI app model subscribed to the session.
func NewApp(opts Options) App {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	ctx, stop := context.WithCancel(context.Background())
	states, unsub := opts.Session.Subscribe(stateBuffer)

	a := App{
		session:         opts.Session,
		mutator:         opts.Mutator,
		cfg:             opts.Config,
		log:             logging.OrNop(opts.Logger).Named(logging.ComponentTUI),
		now:             now,
		ctx:             ctx,
		stop:            stop,
		states:          states,
		unsub:           unsub,
		st:              opts.Session.Get(),
		autoRefresh:     opts.Config.TUI.AutoRefresh,
		refreshInterval: opts.Config.RefreshInterval(),
		needSetup:       opts.NeedSetup,
		spinner:         sp,
	}
	a.recompute()
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnableMouseCellMotion,
		a.spinner.Tick,
		waitForState(a.states),
		initCmd(a.ctx, a.session),
		tickCmd(a.refreshInterval),
	)
}

func (a *App) recompute() {
	now := a.now()
	a.derived = pipeline.Derive(a.st.Snapshot, now)
	a.monthly = pipeline.MonthlySpend(a.st.Snapshot.Expenses, 6, now)

	for tab := range a.cursors {
		n := a.listLen(tab)
		a.cursors[tab] = min(a.cursors[tab], max(n-1, 0))
	}
}

func (a *App) shutdown() {
	a.unsub()
	a.stop()
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		if a.loginForm != nil {
			a.loginForm = a.loginForm.WithWidth(min(msg.Width, 60))
		}
		return a, nil

	case tea.MouseMsg:
		if !a.ready() || a.showHelp {
			return a, nil
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			a.moveCursor(-1)
		case tea.MouseButtonWheelDown:
			a.moveCursor(1)
		case tea.MouseButtonLeft:
			if msg.Y == 0 {
				if tab := a.tabAtX(msg.X); tab >= 0 {
					a.activeTab = tab
				}
			}
		}
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.shutdown()
			return a, tea.Quit
		}
		if a.setupForm != nil {
			return a.updateSetupForm(msg)
		}
		if a.loginForm != nil {
			return a.updateLoginForm(msg)
		}
		if !a.ready() {
			return a, nil
		}
		return a.updateKeys(msg)

	case stateMsg:
		a.st = provider.State(msg)
		a.recompute()
		return a, tea.Batch(waitForState(a.states), a.signedOut())

	case initDoneMsg:
		a.initialized = true
		a.st = a.session.Get()
		a.recompute()
		if msg.err != nil {
			a.flash = msg.err.Error()
		}
		return a, a.nextForm()

	case loginDoneMsg:
		a.loggingIn = false
		a.st = a.session.Get()
		a.recompute()
		if !msg.res.Success {
			a.flash = "Login failed: " + msg.res.Error
			return a, a.nextForm()
		}
		a.flash = ""
		return a, nil

	case logoutDoneMsg:
		a.st = a.session.Get()
		a.recompute()
		a.activeTab = tabOverview
		return a, a.nextForm()

	case refreshDoneMsg:
		a.refreshing = false
		a.st = a.session.Get()
		a.recompute()
		if msg.err != nil {
			a.flash = msg.err.Error()
		} else {
			a.flash = ""
		}
		return a, a.signedOut()

	case mutationDoneMsg:
		a.st = a.session.Get()
		a.recompute()
		if msg.err != nil {
			a.flash = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
			a.log.Warn("mutation from dashboard failed", zap.String(logging.FieldOperation, msg.what), zap.Error(msg.err))
		} else {
			a.flash = ""
		}
		return a, a.signedOut()

	case spinner.TickMsg:
		if !a.ready() {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(a.refreshInterval)}
		if a.ready() && a.autoRefresh && !a.refreshing && a.st.LoggedIn() {
			a.refreshing = true
			cmds = append(cmds, refreshCmd(a.ctx, a.session, true))
		}
		return a, tea.Batch(cmds...)
	}

	// Forward unhandled messages (cursor blinks, etc.) to an active form.
	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if a.loginForm != nil {
		return a.updateLoginForm(msg)
	}
	return a, nil
}

// ready reports whether the main dashboard is showing.
func (a App) ready() bool {
	return a.initialized && a.st.LoggedIn() && a.setupForm == nil && a.loginForm == nil
}

// signedOut reopens the login form when the session ended underneath the
// dashboard, e.g. after the backend rejected the stored tokens.
func (a *App) signedOut() tea.Cmd {
	if !a.initialized || a.st.LoggedIn() || a.loggingIn || a.loginForm != nil {
		return nil
	}
	a.activeTab = tabOverview
	a.refreshing = false
	if a.flash == "" && a.st.LastError != "" {
		a.flash = "Signed out: " + a.st.LastError
	}
	return a.nextForm()
}

// nextForm opens whatever form the session needs next: setup first, then
// login when no user is signed in.
func (a *App) nextForm() tea.Cmd {
	if a.needSetup && a.setupForm == nil {
		a.setupVals = newSetupValues(a.cfg)
		a.setupForm = newSetupForm(a.setupVals)
		if a.width > 0 {
			a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
		}
		return a.setupForm.Init()
	}
	if !a.st.LoggedIn() && a.loginForm == nil && !a.loggingIn {
		a.loginVals = &loginValues{}
		a.loginForm = newLoginForm(a.loginVals, a.cfg.API.BaseURL)
		if a.width > 0 {
			a.loginForm = a.loginForm.WithWidth(min(a.width, 60))
		}
		return a.loginForm.Init()
	}
	return nil
}

func (a App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	switch key {
	case "q":
		a.shutdown()
		return a, tea.Quit
	case "r":
		if a.refreshing {
			return a, nil
		}
		a.refreshing = true
		return a, refreshCmd(a.ctx, a.session, false)
	case "R":
		a.autoRefresh = !a.autoRefresh
		a.cfg.TUI.AutoRefresh = a.autoRefresh
		if err := config.Save(a.cfg); err != nil {
			a.log.Warn("saving auto-refresh setting", zap.Error(err))
		}
		return a, nil
	case "L":
		return a, logoutCmd(a.ctx, a.session)
	case "j", "down":
		a.moveCursor(1)
		return a, nil
	case "k", "up":
		a.moveCursor(-1)
		return a, nil
	case "g":
		a.cursors[a.activeTab] = 0
		return a, nil
	case "G":
		a.cursors[a.activeTab] = max(a.listLen(a.activeTab)-1, 0)
		return a, nil
	case "f":
		if a.activeTab == tabTasks {
			a.taskFilter = nextFilter(a.taskFilter, model.TaskStatuses)
			a.cursors[tabTasks] = 0
		}
		return a, nil
	case "enter", " ":
		return a, a.cycleSelectedStatus()
	case "left":
		a.activeTab = (a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs)
		return a, nil
	case "right", "tab":
		a.activeTab = (a.activeTab + 1) % len(components.Tabs)
		return a, nil
	}

	if r := []rune(key); len(r) == 1 {
		if tab := components.TabIdxByKey(r[0]); tab >= 0 {
			a.activeTab = tab
		}
	}
	return a, nil
}

func (a *App) moveCursor(delta int) {
	n := a.listLen(a.activeTab)
	if n == 0 {
		return
	}
	a.cursors[a.activeTab] = min(max(a.cursors[a.activeTab]+delta, 0), n-1)
}

func (a App) listLen(tab int) int {
	snap := a.st.Snapshot
	switch tab {
	case tabTasks:
		return len(a.visibleTasks())
	case tabPhases:
		return len(snap.Phases)
	case tabInventory:
		return len(snap.Materials)
	case tabPermits:
		return len(snap.PermitSteps)
	}
	return 0
}

// cycleSelectedStatus advances the selected row to its next status.
func (a *App) cycleSelectedStatus() tea.Cmd {
	m := a.mutator
	if m == nil {
		return nil
	}
	cur := a.cursors[a.activeTab]

	switch a.activeTab {
	case tabTasks:
		tasks := a.visibleTasks()
		if cur >= len(tasks) {
			return nil
		}
		t := tasks[cur]
		next := nextStatus(t.Status, model.TaskStatuses)
		return mutateCmd(a.ctx, "update task", func(ctx context.Context) error {
			return m.UpdateTaskStatus(ctx, t.ID, next)
		})
	case tabPhases:
		phases := pipeline.SortPhases(a.st.Snapshot.Phases)
		if cur >= len(phases) {
			return nil
		}
		p := phases[cur]
		next := nextStatus(p.Status, model.PhaseStatuses)
		return mutateCmd(a.ctx, "update phase", func(ctx context.Context) error {
			return m.UpdatePhaseStatus(ctx, p.ID, next)
		})
	case tabPermits:
		steps := sortedPermits(a.st.Snapshot.PermitSteps)
		if cur >= len(steps) {
			return nil
		}
		s := steps[cur]
		next := nextStatus(s.Status, model.PermitStatuses)
		return mutateCmd(a.ctx, "update permit", func(ctx context.Context) error {
			return m.UpdatePermitStatus(ctx, s.ID, next)
		})
	}
	return nil
}

// nextStatus returns the status after cur, wrapping around.
func nextStatus(cur string, statuses []string) string {
	for i, s := range statuses {
		if s == cur {
			return statuses[(i+1)%len(statuses)]
		}
	}
	return statuses[0]
}

// nextFilter cycles "" -> each status -> "".
func nextFilter(cur string, statuses []string) string {
	if cur == "" {
		return statuses[0]
	}
	for i, s := range statuses {
		if s == cur && i+1 < len(statuses) {
			return statuses[i+1]
		}
	}
	return ""
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

func (a App) isCompactLayout() bool {
	return a.contentWidth() < compactWidth
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.loginForm != nil || a.loggingIn {
		return a.viewLogin()
	}
	if !a.initialized || (a.st.Loading && a.st.Snapshot.IsEmpty()) {
		return a.viewLoading()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := max(a.height, 5)
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  sitebook needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)
	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ sitebook"))
	b.WriteString(subtitleStyle.Render(" · Construction dashboard"))
	b.WriteString("\n\n")
	b.WriteString(a.spinner.View())
	b.WriteString(subtitleStyle.Render(" Loading project data..."))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	sections := []struct {
		title    string
		bindings [][2]string
	}{
		{"Navigation", [][2]string{
			{"o b t h i m", "Jump to tab"},
			{"← →", "Previous / Next tab"},
			{"j k", "Move selection"},
			{"g G", "First / Last row"},
		}},
		{"Actions", [][2]string{
			{"Enter", "Advance status of the selected row"},
			{"f", "Filter tasks by status"},
			{"r", "Refresh data"},
			{"R", "Toggle auto-refresh"},
			{"L", "Log out"},
			{"?", "Toggle help"},
			{"q", "Quit"},
		}},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sec.title))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-12s", bind[0])),
				descStyle.Render(bind[1]))
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	h := a.height

	projectName := "No project"
	if p := a.st.Snapshot.Project; p != nil {
		projectName = p.Name
	}
	projStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	info := projStyle.Render(" "+projectName) +
		dimStyle.Render(" │ "+a.derived.Stats.CurrentPhase+" ")
	header := components.RenderTabBar(a.activeTab, w) + "\n" +
		lipgloss.NewStyle().Background(t.Surface).Width(w).Render(info)

	var user string
	if a.st.User != nil {
		user = a.st.User.DisplayName()
	}
	statusBar := components.RenderStatusBar(w, components.StatusInfo{
		User:        user,
		LastRefresh: a.st.LastRefresh,
		Refreshing:  a.refreshing || a.st.Loading,
		AutoRefresh: a.autoRefresh,
		Error:       a.flash,
		Now:         a.now(),
	})

	contentH := max(h-lipgloss.Height(header)-lipgloss.Height(statusBar), minContentHeight)

	var content string
	switch a.activeTab {
	case tabOverview:
		content = a.renderOverviewTab(cw)
	case tabBudget:
		content = a.renderBudgetTab(cw)
	case tabTasks:
		content = a.renderTasksTab(cw, contentH)
	case tabPhases:
		content = a.renderPhasesTab(cw, contentH)
	case tabInventory:
		content = a.renderInventoryTab(cw, contentH)
	case tabPermits:
		content = a.renderPermitsTab(cw, contentH)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// ─── Commands ───────────────────────────────────────────────────

func waitForState(ch <-chan provider.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func initCmd(ctx context.Context, s Session) tea.Cmd {
	return func() tea.Msg {
		return initDoneMsg{err: s.Init(ctx)}
	}
}

func loginCmd(ctx context.Context, s Session, username, password string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{res: s.Login(ctx, username, password)}
	}
}

func logoutCmd(ctx context.Context, s Session) tea.Cmd {
	return func() tea.Msg {
		s.Logout(ctx)
		return logoutDoneMsg{}
	}
}

func refreshCmd(ctx context.Context, s Session, silent bool) tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: s.RefreshData(ctx, silent)}
	}
}

func mutateCmd(ctx context.Context, what string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return mutationDoneMsg{what: what, err: fn(ctx)}
	}
}

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// ─── Helpers ────────────────────────────────────────────────────

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)
		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW
		if i < len(components.Tabs)-1 {
			pos++ // separator
		}
	}
	return -1
}

// visibleRange returns the [start, end) window of n rows that keeps cursor
// visible in height rows, scrolling only as far as needed.
func visibleRange(cursor, n, height int) (int, int) {
	height = max(height, 1)
	start := max(cursor-height+1, 0)
	start = max(min(start, n-height), 0)
	return start, min(start+height, n)
}

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")

	var result strings.Builder
	for i, line := range lines {
		result.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg)))
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
