package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/indentrecon/indentrecon/internal/config"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/indents"
	"github.com/indentrecon/indentrecon/internal/services/shortfall"
	indentviews "github.com/indentrecon/indentrecon/internal/tui/views/indents"
	sweepviews "github.com/indentrecon/indentrecon/internal/tui/views/sweeps"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// MaxContentWidth is the maximum width for content display
const MaxContentWidth = 120

// chromeLines is the number of lines used by header, alert bar and footer.
const chromeLines = 6

// Module represents a view module in the console.
type Module string

const (
	ModuleDashboard Module = "dashboard"
	ModuleIndents   Module = "indents"
	ModuleSweeps    Module = "sweeps"
	ModuleHelp      Module = "help"
)

// Services are the backends the console drives.
type Services struct {
	Indents *indents.Service
	Sweeps  *shortfall.Service
}

// App is the main Bubble Tea application model.
type App struct {
	svcs   Services
	config *config.Config
	clock  util.Clock

	indentList *indentviews.ListView
	runsView   *sweepviews.RunsView

	// UI state
	theme       *Theme
	keys        KeyMap
	width       int
	height      int
	ready       bool
	quitting    bool
	showConfirm bool

	currentModule  Module
	previousModule Module
	showDetail     bool
	searchMode     bool
	searchInput    string
	sweeping       bool

	// Indent detail, loaded on Enter
	detail   *models.Indent
	adjusted *models.Indent

	alerts []Alert

	counts  models.IndentStatusCounts
	lastRun *models.SweepSummary
}

// Alert represents a console alert.
type Alert struct {
	Level   AlertLevel
	Message string
	Time    time.Time
}

// AlertLevel indicates the severity of an alert.
type AlertLevel int

const (
	AlertInfo AlertLevel = iota
	AlertWarning
	AlertCritical
)

type tickMsg time.Time

type countsMsg struct {
	counts *models.IndentStatusCounts
	err    error
}

type indentsLoadedMsg struct {
	err error
}

type runsLoadedMsg struct {
	err error
}

type indentDetailMsg struct {
	indent   *models.Indent
	adjusted *models.Indent
	err      error
}

type sweepDoneMsg struct {
	summary *models.SweepSummary
	err     error
}

// New creates a new App instance.
func New(svcs Services, cfg *config.Config, clock util.Clock) *App {
	var lister indentviews.Lister
	if svcs.Indents != nil {
		lister = svcs.Indents
	}
	var runs sweepviews.RunLister
	if svcs.Sweeps != nil {
		runs = svcs.Sweeps
	}

	return &App{
		svcs:          svcs,
		config:        cfg,
		clock:         clock,
		indentList:    indentviews.NewListView(lister),
		runsView:      sweepviews.NewRunsView(runs),
		theme:         NewTheme(cfg.Display.ColorScheme),
		keys:          DefaultKeyMap(),
		currentModule: ModuleDashboard,
		alerts:        []Alert{},
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		a.loadCounts(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.updateViewDimensions()
		return a, nil

	case tickMsg:
		return a, tickCmd()

	case countsMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load indent counts: "+msg.err.Error())
			return a, nil
		}
		a.counts = *msg.counts
		return a, nil

	case indentsLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load indents: "+msg.err.Error())
		}
		return a, nil

	case runsLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load sweeps: "+msg.err.Error())
		}
		return a, nil

	case indentDetailMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load indent: "+msg.err.Error())
			return a, nil
		}
		a.detail = msg.indent
		a.adjusted = msg.adjusted
		a.showDetail = true
		return a, nil

	case sweepDoneMsg:
		a.sweeping = false
		if msg.err != nil {
			a.AddAlert(AlertCritical, "Sweep failed: "+msg.err.Error())
			return a, nil
		}
		a.lastRun = msg.summary
		a.runsView.Prepend(msg.summary)
		text := fmt.Sprintf("Sweep processed %d indents, created %d adjusted", msg.summary.Processed, msg.summary.Created)
		if msg.summary.Errors > 0 {
			a.AddAlert(AlertWarning, fmt.Sprintf("%s, %d failed", text, msg.summary.Errors))
		} else {
			a.AddAlert(AlertInfo, text)
		}
		return a, tea.Batch(a.loadCounts(), a.loadIndents())
	}

	return a, nil
}

// updateViewDimensions sizes the tables to the terminal.
func (a *App) updateViewDimensions() {
	rows := ContentHeight(a.height, chromeLines) - 8
	if rows < 3 {
		rows = 3
	}
	a.indentList.SetVisibleRows(rows)
	a.runsView.SetVisibleRows(rows)
}

// handleKeyPress processes key press events.
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The quit dialog is modal.
	if a.showConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			a.quitting = true
			return a, tea.Quit
		case "n", "N", "esc":
			a.showConfirm = false
		}
		return a, nil
	}

	// Search takes all input before global keys.
	if a.currentModule == ModuleIndents && a.searchMode {
		return a.handleSearchKeys(msg)
	}

	if a.keys.IsQuit(msg) {
		a.showConfirm = true
		return a, nil
	}

	if module, ok := a.keys.ModuleFor(msg); ok {
		return a, a.switchModule(module)
	}

	if a.keys.Back.Matches(msg) {
		if a.showDetail {
			a.showDetail = false
			return a, nil
		}
		if a.currentModule == ModuleHelp && a.previousModule != "" {
			a.currentModule = a.previousModule
			a.previousModule = ""
		}
		return a, nil
	}

	if a.keys.RunSweep.Matches(msg) && (a.currentModule == ModuleDashboard || a.currentModule == ModuleSweeps) {
		return a, a.runSweep()
	}

	switch a.currentModule {
	case ModuleIndents:
		return a.handleIndentKeys(msg)
	case ModuleSweeps:
		return a.handleSweepKeys(msg)
	case ModuleDashboard:
		if a.keys.Refresh.Matches(msg) {
			return a, a.loadCounts()
		}
	}

	return a, nil
}

// switchModule changes the visible module and loads its data.
func (a *App) switchModule(module Module) tea.Cmd {
	if module == ModuleHelp {
		if a.currentModule != ModuleHelp {
			a.previousModule = a.currentModule
		}
		a.currentModule = ModuleHelp
		return nil
	}

	a.currentModule = module
	a.showDetail = false
	switch module {
	case ModuleDashboard:
		return a.loadCounts()
	case ModuleIndents:
		return a.loadIndents()
	case ModuleSweeps:
		return a.loadRuns()
	}
	return nil
}

// handleIndentKeys handles key presses in the indents module.
func (a *App) handleIndentKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.showDetail {
		return a, nil
	}

	switch {
	case a.keys.Up.Matches(msg):
		a.indentList.MoveUp()
	case a.keys.Down.Matches(msg):
		a.indentList.MoveDown()
	case a.keys.Select.Matches(msg):
		if ind := a.indentList.Selected(); ind != nil {
			return a, a.loadDetail(ind.ID)
		}
	case a.keys.PageUp.Matches(msg):
		a.indentList.PrevPage()
		return a, a.loadIndents()
	case a.keys.PageDown.Matches(msg):
		a.indentList.NextPage()
		return a, a.loadIndents()
	case a.keys.CycleStatus.Matches(msg):
		a.indentList.CycleStatus()
		return a, a.loadIndents()
	case a.keys.ToggleAdjust.Matches(msg):
		a.indentList.ToggleAdjusted()
		return a, a.loadIndents()
	case a.keys.Search.Matches(msg):
		a.searchMode = true
		a.searchInput = ""
	case a.keys.Refresh.Matches(msg):
		return a, a.loadIndents()
	}
	return a, nil
}

// handleSearchKeys edits the route filter.
func (a *App) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "esc":
		a.searchMode = false
		a.searchInput = ""
		a.indentList.SetRoute("")
		return a, a.loadIndents()
	case "enter":
		a.searchMode = false
		a.indentList.SetRoute(a.searchInput)
		return a, a.loadIndents()
	case "backspace":
		if len(a.searchInput) > 0 {
			a.searchInput = a.searchInput[:len(a.searchInput)-1]
		}
	default:
		if len(key) == 1 {
			a.searchInput += key
		}
	}
	return a, nil
}

// handleSweepKeys handles key presses in the sweeps module.
func (a *App) handleSweepKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.showDetail {
		return a, nil
	}

	switch {
	case a.keys.Up.Matches(msg):
		a.runsView.MoveUp()
	case a.keys.Down.Matches(msg):
		a.runsView.MoveDown()
	case a.keys.Select.Matches(msg):
		if a.runsView.Selected() != nil {
			a.showDetail = true
		}
	case a.keys.Refresh.Matches(msg):
		return a, a.loadRuns()
	}
	return a, nil
}

func (a *App) loadCounts() tea.Cmd {
	if a.svcs.Indents == nil {
		return nil
	}
	return func() tea.Msg {
		counts, err := a.svcs.Indents.StatusCounts(context.Background())
		return countsMsg{counts: counts, err: err}
	}
}

func (a *App) loadIndents() tea.Cmd {
	return func() tea.Msg {
		return indentsLoadedMsg{err: a.indentList.Load(context.Background())}
	}
}

func (a *App) loadRuns() tea.Cmd {
	return func() tea.Msg {
		return runsLoadedMsg{err: a.runsView.Load(context.Background())}
	}
}

// loadDetail fetches an indent with its lines and, for a source indent,
// the adjusted indent created from it.
func (a *App) loadDetail(id string) tea.Cmd {
	if a.svcs.Indents == nil {
		return nil
	}
	return func() tea.Msg {
		ctx := context.Background()
		ind, err := a.svcs.Indents.GetIndent(ctx, id)
		if err != nil {
			return indentDetailMsg{err: err}
		}
		var adjusted *models.Indent
		if !ind.IsAdjusted {
			adjusted, err = a.svcs.Indents.GetAdjustedFor(ctx, id)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return indentDetailMsg{err: err}
			}
		}
		return indentDetailMsg{indent: ind, adjusted: adjusted}
	}
}

// runSweep starts a shortfall sweep unless one is already running.
func (a *App) runSweep() tea.Cmd {
	if a.sweeping || a.svcs.Sweeps == nil {
		return nil
	}
	a.sweeping = true
	a.AddAlert(AlertInfo, "Shortfall sweep started")
	return func() tea.Msg {
		summary, err := a.svcs.Sweeps.RunSweep(context.Background())
		return sweepDoneMsg{summary: summary, err: err}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initializing..."
	}

	if a.quitting {
		return a.theme.Title.Render("Indent reconciliation console closed.")
	}

	var b strings.Builder

	b.WriteString(a.renderHeader())
	b.WriteString("\n")

	b.WriteString(a.renderAlertBar())
	b.WriteString("\n")

	contentHeight := ContentHeight(a.height, chromeLines)
	if a.showConfirm {
		b.WriteString(a.renderConfirmDialog(contentHeight))
	} else {
		b.WriteString(a.renderContent(contentHeight))
	}

	b.WriteString("\n")
	b.WriteString(a.renderFooter())

	return b.String()
}

// renderHeader renders the top header bar.
func (a *App) renderHeader() string {
	title := fmt.Sprintf("INDENT RECONCILIATION v%s", Version)
	if GetBreakpoint(a.width) == BreakpointNarrow {
		title = "INDENTRECON"
	}

	info := fmt.Sprintf("PENDING: %d", a.counts.Unprocessed)
	if a.sweeping {
		info = "SWEEPING | " + info
	}

	spacing := a.width - lipgloss.Width(title) - lipgloss.Width(info) - 2
	if spacing < 1 {
		spacing = 1
	}

	header := a.theme.Header.Render(title) +
		strings.Repeat(" ", spacing) +
		a.theme.Header.Render(info)

	return header + "\n" + a.theme.DrawDoubleLine(a.width)
}

// renderAlertBar renders the clock and the newest alert.
func (a *App) renderAlertBar() string {
	timeStr := a.clock.Now().Format(a.config.Display.DateFormat + " 15:04:05")

	var alertText string
	if len(a.alerts) > 0 {
		alert := a.alerts[0]
		switch alert.Level {
		case AlertCritical:
			alertText = a.theme.AlertCrit.Render("CRITICAL: " + alert.Message)
		case AlertWarning:
			alertText = a.theme.AlertWarn.Render("WARNING: " + alert.Message)
		default:
			alertText = a.theme.Alert.Render("INFO: " + alert.Message)
		}
	} else {
		alertText = a.theme.Muted.Render("No alerts")
	}

	return a.theme.Value.Render(timeStr) + a.theme.StatusDivider.Render() + alertText
}

// renderContent renders the main content area for the current module.
func (a *App) renderContent(height int) string {
	contentWidth := min(a.width, MaxContentWidth)

	style := lipgloss.NewStyle().
		Width(a.width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Top)

	return style.Render(lipgloss.NewStyle().Width(contentWidth).Render(a.moduleContent(contentWidth)))
}

func (a *App) moduleContent(width int) string {
	switch a.currentModule {
	case ModuleIndents:
		return a.renderIndents(width)
	case ModuleSweeps:
		return a.renderSweeps(width)
	case ModuleHelp:
		return a.renderHelp()
	default:
		return a.renderDashboard(width)
	}
}

func (a *App) renderIndents(width int) string {
	if a.showDetail {
		out := a.indentList.RenderDetail(a.detail)
		if a.adjusted != nil {
			out += "\n\n" + a.theme.Label.Render("Adjusted indent: ") + a.theme.Accent.Render(a.adjusted.ID)
		}
		return out
	}

	var searchBar string
	if a.searchMode {
		searchBar = a.theme.Label.Render("ROUTE: ") +
			a.theme.Accent.Render(a.searchInput) +
			a.theme.Accent.Render("_") + "\n\n"
	}
	return searchBar + a.indentList.Render(width)
}

func (a *App) renderSweeps(width int) string {
	if a.showDetail {
		return a.runsView.RenderDetail(a.runsView.Selected())
	}
	return a.runsView.Render(width)
}

// renderDashboard renders indent status and the latest sweep.
func (a *App) renderDashboard(width int) string {
	var b strings.Builder

	b.WriteString(a.theme.Title.Render("═══ RECONCILIATION OVERVIEW ═══"))
	b.WriteString("\n\n")

	panelWidth := 44
	if GetBreakpoint(width) == BreakpointNarrow {
		panelWidth = width
	}

	c := a.counts
	source := c.Unprocessed + c.ProcessedNoAction + c.Processed
	done := c.ProcessedNoAction + c.Processed

	var status strings.Builder
	fmt.Fprintf(&status, "Unprocessed:         %d\n", c.Unprocessed)
	fmt.Fprintf(&status, "Processed:           %d\n", c.Processed)
	fmt.Fprintf(&status, "Processed no action: %d\n", c.ProcessedNoAction)
	fmt.Fprintf(&status, "Adjusted indents:    %d\n\n", c.Adjusted)
	pct := 0
	if source > 0 {
		pct = done * 100 / source
	}
	status.WriteString(a.theme.ProgressBar(float64(done), float64(source), panelWidth-16))
	fmt.Fprintf(&status, " %d%%", pct)
	statusPanel := a.theme.Panel("INDENT STATUS", status.String(), panelWidth)

	var sweep strings.Builder
	switch {
	case a.sweeping:
		sweep.WriteString(a.theme.Warning.Render("Sweep running..."))
	case a.lastRun == nil:
		sweep.WriteString(a.theme.Muted.Render("No sweep run this session"))
		sweep.WriteString("\n\n")
		sweep.WriteString(a.theme.Label.Render("Press r to run one"))
	default:
		r := a.lastRun
		fmt.Fprintf(&sweep, "Started:          %s\n", util.FormatDateTime(r.StartedAt))
		fmt.Fprintf(&sweep, "Age:              %s\n", util.RelativeTimeString(r.StartedAt, a.clock.Now()))
		fmt.Fprintf(&sweep, "Indents:          %d\n", r.Processed)
		fmt.Fprintf(&sweep, "Adjusted created: %d\n", r.Created)
		fmt.Fprintf(&sweep, "No shortfall:     %d\n", r.WithoutShortfall)
		errLine := fmt.Sprintf("Errors:           %d", r.Errors)
		if r.Errors > 0 {
			sweep.WriteString(a.theme.Error.Render(errLine))
		} else {
			sweep.WriteString(a.theme.Success.Render(errLine))
		}
	}
	sweepPanel := a.theme.Panel("LAST SWEEP", sweep.String(), panelWidth)

	b.WriteString(SideBySide(statusPanel, sweepPanel, width, 2))
	return b.String()
}

// renderHelp renders the help screen.
func (a *App) renderHelp() string {
	var b strings.Builder

	b.WriteString(a.theme.Title.Render("═══ HELP ═══"))
	b.WriteString("\n\n")

	sections := []struct {
		title string
		items [][2]string
	}{
		{"NAVIGATION", [][2]string{
			{"F1 / ?", "Help"},
			{"F2", "Dashboard"},
			{"F3", "Indents"},
			{"F4", "Shortfall sweeps"},
			{"F10 / q", "Quit"},
		}},
		{"CONTROLS", [][2]string{
			{"Up/Down", "Navigate"},
			{"Enter", "Open"},
			{"Esc", "Back/Cancel"},
			{"PgUp/Dn", "Page navigation"},
			{"Ctrl+R", "Refresh"},
		}},
		{"INDENTS", [][2]string{
			{"s", "Cycle status filter"},
			{"a", "Show or hide adjusted indents"},
			{"/", "Filter by route"},
		}},
		{"SWEEPS", [][2]string{
			{"r", "Run shortfall sweep"},
		}},
	}

	for _, sec := range sections {
		b.WriteString(a.theme.Subtitle.Render(sec.title))
		b.WriteString("\n\n")
		for _, item := range sec.items {
			b.WriteString(a.theme.Primary.Render(fmt.Sprintf("    %-8s  %s", item[0], item[1])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(a.theme.Muted.Render("Press Esc to return"))
	return b.String()
}

// renderConfirmDialog renders the quit confirmation dialog.
func (a *App) renderConfirmDialog(height int) string {
	dialog := a.theme.Box.Render(
		a.theme.Title.Render("CONFIRM EXIT") + "\n\n" +
			a.theme.Base.Render("Are you sure you want to exit?") + "\n\n" +
			a.theme.Label.Render("[Y]es  [N]o"),
	)

	style := lipgloss.NewStyle().
		Width(a.width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center)

	return style.Render(dialog)
}

// renderFooter renders the bottom status bar.
func (a *App) renderFooter() string {
	help := a.keys.StatusBarHelp()
	if GetBreakpoint(a.width) == BreakpointNarrow {
		help = "F1 F2 F3 F4 F10"
	}
	return a.theme.DrawHorizontalLine(a.width) + "\n" + a.theme.Footer.Render(help)
}

// AddAlert adds a new alert to the display.
func (a *App) AddAlert(level AlertLevel, message string) {
	a.alerts = append([]Alert{{
		Level:   level,
		Message: message,
		Time:    a.clock.Now(),
	}}, a.alerts...)

	if len(a.alerts) > 10 {
		a.alerts = a.alerts[:10]
	}
}

// ClearAlerts removes all alerts.
func (a *App) ClearAlerts() {
	a.alerts = []Alert{}
}

// Run starts the console and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, svcs Services, cfg *config.Config, clock util.Clock) error {
	p := tea.NewProgram(New(svcs, cfg, clock), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
