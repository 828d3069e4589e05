package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/indentrecon/indentrecon/internal/models"
)

func TestApp_InitialState(t *testing.T) {
	app := newTestApp(t)

	if app.currentModule != ModuleDashboard {
		t.Errorf("expected initial module Dashboard, got %s", app.currentModule)
	}
	if !app.ready {
		t.Error("expected app to be ready")
	}
	if app.quitting {
		t.Error("expected app not to be quitting")
	}
	if app.showDetail {
		t.Error("expected no detail shown initially")
	}
	if app.searchMode {
		t.Error("expected search mode off initially")
	}
	if app.sweeping {
		t.Error("expected no sweep running initially")
	}
}

func TestApp_View_NotReady(t *testing.T) {
	app := newTestApp(t)
	app.ready = false

	if !strings.Contains(app.View(), "Initializing") {
		t.Error("expected initialization message when not ready")
	}
}

func TestApp_View_Quitting(t *testing.T) {
	app := newTestApp(t)
	app.quitting = true

	if !strings.Contains(app.View(), "console closed") {
		t.Error("expected closing message when quitting")
	}
}

func TestApp_View_Dashboard(t *testing.T) {
	app := newTestApp(t)
	output := app.View()

	for _, want := range []string{"RECONCILIATION OVERVIEW", "INDENT STATUS", "LAST SWEEP", "No sweep run this session"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in dashboard", want)
		}
	}
}

func TestApp_ModuleNavigation_FKeys(t *testing.T) {
	tests := []struct {
		key    tea.KeyType
		module Module
	}{
		{tea.KeyF1, ModuleHelp},
		{tea.KeyF2, ModuleDashboard},
		{tea.KeyF3, ModuleIndents},
		{tea.KeyF4, ModuleSweeps},
	}

	for _, tt := range tests {
		t.Run(string(tt.module), func(t *testing.T) {
			app := newTestApp(t)
			press(t, app, specialKeyMsg(tt.key))
			if app.currentModule != tt.module {
				t.Errorf("expected module %s, got %s", tt.module, app.currentModule)
			}
		})
	}
}

func TestApp_HelpAndBack(t *testing.T) {
	app := newTestApp(t)
	press(t, app, specialKeyMsg(tea.KeyF4))

	press(t, app, keyMsg("?"))
	if app.currentModule != ModuleHelp {
		t.Fatalf("expected help, got %s", app.currentModule)
	}
	if !strings.Contains(app.View(), "Run shortfall sweep") {
		t.Error("expected sweep controls in help")
	}

	// A second help press keeps the original return target.
	press(t, app, specialKeyMsg(tea.KeyF1))
	press(t, app, specialKeyMsg(tea.KeyEscape))
	if app.currentModule != ModuleSweeps {
		t.Errorf("expected return to sweeps, got %s", app.currentModule)
	}
}

func TestApp_QuitConfirmation(t *testing.T) {
	tests := []struct {
		name     string
		open     tea.KeyMsg
		answer   tea.KeyMsg
		quitting bool
	}{
		{"q then y", keyMsg("q"), keyMsg("y"), true},
		{"f10 then enter", specialKeyMsg(tea.KeyF10), specialKeyMsg(tea.KeyEnter), true},
		{"q then n", keyMsg("q"), keyMsg("n"), false},
		{"q then esc", keyMsg("q"), specialKeyMsg(tea.KeyEscape), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.Update(tt.open)
			if !app.showConfirm {
				t.Fatal("expected confirm dialog")
			}
			if !strings.Contains(app.View(), "CONFIRM EXIT") {
				t.Error("expected confirm dialog in view")
			}

			_, cmd := app.Update(tt.answer)
			if app.quitting != tt.quitting {
				t.Errorf("quitting = %v, want %v", app.quitting, tt.quitting)
			}
			if tt.quitting && cmd == nil {
				t.Error("expected quit command")
			}
			if !tt.quitting && app.showConfirm {
				t.Error("expected dialog dismissed")
			}
		})
	}
}

func TestApp_QuitConfirmation_IgnoresOtherKeys(t *testing.T) {
	app := newTestApp(t)
	app.Update(keyMsg("q"))
	app.Update(specialKeyMsg(tea.KeyF3))

	if !app.showConfirm {
		t.Error("expected dialog to stay open")
	}
	if app.currentModule != ModuleDashboard {
		t.Errorf("expected module unchanged, got %s", app.currentModule)
	}
}

func TestApp_WindowResize(t *testing.T) {
	app := newTestApp(t)
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	if app.width != 80 || app.height != 24 {
		t.Errorf("expected 80x24, got %dx%d", app.width, app.height)
	}
	if !strings.Contains(app.View(), "[F3]Indents") {
		t.Error("expected full footer at 80 columns")
	}

	app.Update(tea.WindowSizeMsg{Width: 50, Height: 20})
	output := app.View()
	if !strings.Contains(output, "INDENTRECON") {
		t.Error("expected short title when narrow")
	}
	if strings.Contains(output, "[F3]Indents") {
		t.Error("expected compact footer when narrow")
	}
}

func TestApp_CountsMessage(t *testing.T) {
	app := newTestApp(t)
	app.Update(countsMsg{counts: &models.IndentStatusCounts{Unprocessed: 3, Processed: 1, ProcessedNoAction: 2}})

	output := app.View()
	if !strings.Contains(output, "PENDING: 3") {
		t.Error("expected pending count in header")
	}
	if !strings.Contains(output, "50%") {
		t.Error("expected half the source indents reported processed")
	}

	app.Update(countsMsg{err: errors.New("database is locked")})
	if len(app.alerts) != 1 || app.alerts[0].Level != AlertWarning {
		t.Fatalf("expected one warning, got %+v", app.alerts)
	}
	if app.counts.Unprocessed != 3 {
		t.Error("expected counts kept after a failed refresh")
	}
}

func TestApp_IndentsListAndDetail(t *testing.T) {
	app := newSeededApp(t)
	press(t, app, specialKeyMsg(tea.KeyF3))

	output := app.View()
	if !strings.Contains(output, "INDENTS") || !strings.Contains(output, "R-NORTH") {
		t.Fatalf("expected seeded indent listed:\n%s", output)
	}

	press(t, app, specialKeyMsg(tea.KeyEnter))
	if !app.showDetail || app.detail == nil {
		t.Fatal("expected indent detail loaded")
	}
	if app.adjusted != nil {
		t.Error("expected no adjusted indent before a sweep")
	}
	output = app.View()
	if !strings.Contains(output, "MILK-500") {
		t.Error("expected indent lines in detail")
	}

	press(t, app, specialKeyMsg(tea.KeyEscape))
	if app.showDetail {
		t.Error("expected back to list")
	}
}

func TestApp_IndentFilters(t *testing.T) {
	app := newSeededApp(t)
	press(t, app, specialKeyMsg(tea.KeyF3))

	press(t, app, keyMsg("s"))
	if got := app.indentList.Filter().Status; got != models.IndentStatusUnprocessed {
		t.Errorf("expected UNPROCESSED filter, got %q", got)
	}
	press(t, app, keyMsg("a"))
	if !app.indentList.Filter().IncludeAdjusted {
		t.Error("expected adjusted indents included")
	}

	press(t, app, keyMsg("/"))
	if !app.searchMode {
		t.Fatal("expected search mode")
	}
	for _, k := range []string{"R", "-", "S", "X"} {
		press(t, app, keyMsg(k))
	}
	press(t, app, specialKeyMsg(tea.KeyBackspace))
	if app.searchInput != "R-S" {
		t.Errorf("expected search input R-S, got %q", app.searchInput)
	}
	if !strings.Contains(app.View(), "ROUTE: ") {
		t.Error("expected route prompt")
	}

	press(t, app, specialKeyMsg(tea.KeyEnter))
	if app.searchMode {
		t.Error("expected search mode off after enter")
	}
	if got := app.indentList.Filter().Route; got != "R-S" {
		t.Errorf("expected route filter R-S, got %q", got)
	}
	if !strings.Contains(app.View(), "No indents found") {
		t.Error("expected empty result for R-S")
	}

	press(t, app, keyMsg("/"))
	press(t, app, specialKeyMsg(tea.KeyEscape))
	if app.indentList.Filter().Route != "" {
		t.Error("expected route filter cleared on cancel")
	}
}

func TestApp_RunSweep(t *testing.T) {
	app := newSeededApp(t)
	press(t, app, specialKeyMsg(tea.KeyF4))
	if !strings.Contains(app.View(), "No sweeps have run yet") {
		t.Error("expected no runs before the first sweep")
	}

	press(t, app, keyMsg("r"))
	if app.sweeping {
		t.Error("expected sweep finished")
	}
	if app.lastRun == nil {
		t.Fatal("expected last run recorded")
	}
	if app.lastRun.Created != 1 {
		t.Errorf("expected 1 adjusted indent, got %d", app.lastRun.Created)
	}
	if app.counts.Processed != 1 || app.counts.Adjusted != 1 {
		t.Errorf("expected counts refreshed, got %+v", app.counts)
	}
	if app.alerts[0].Level != AlertInfo || !strings.Contains(app.alerts[0].Message, "created 1 adjusted") {
		t.Errorf("unexpected alert %+v", app.alerts[0])
	}

	press(t, app, specialKeyMsg(tea.KeyEnter))
	output := app.View()
	if !strings.Contains(output, "SWEEP "+app.lastRun.RunID) || !strings.Contains(output, "Created") {
		t.Errorf("expected run detail:\n%s", output)
	}

	// The source indent now points at its adjusted indent.
	press(t, app, specialKeyMsg(tea.KeyF3))
	press(t, app, specialKeyMsg(tea.KeyEnter))
	if app.adjusted == nil {
		t.Fatal("expected adjusted indent in detail")
	}
	if !strings.Contains(app.View(), "Adjusted indent: ") {
		t.Error("expected adjusted indent id in detail")
	}
}

func TestApp_RunSweep_Dashboard(t *testing.T) {
	app := newSeededApp(t)
	press(t, app, keyMsg("r"))

	output := app.View()
	if !strings.Contains(output, "Adjusted created: 1") {
		t.Errorf("expected last sweep on dashboard:\n%s", output)
	}
	if !strings.Contains(output, "just now") {
		t.Errorf("expected sweep age on dashboard:\n%s", output)
	}
}

func TestApp_RunSweep_OnlyOneAtATime(t *testing.T) {
	app := newTestApp(t)
	app.sweeping = true

	_, cmd := app.Update(keyMsg("r"))
	if cmd != nil {
		t.Error("expected no second sweep while one is running")
	}
	if !strings.Contains(app.View(), "SWEEPING") {
		t.Error("expected sweeping marker in header")
	}
}

func TestApp_SweepFailure(t *testing.T) {
	app := newTestApp(t)
	app.sweeping = true
	app.Update(sweepDoneMsg{err: errors.New("disk I/O error")})

	if app.sweeping {
		t.Error("expected sweeping cleared")
	}
	if app.alerts[0].Level != AlertCritical {
		t.Errorf("expected critical alert, got %+v", app.alerts[0])
	}
}

func TestApp_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.Msg
		want string
	}{
		{"indents", indentsLoadedMsg{err: errors.New("boom")}, "Failed to load indents"},
		{"runs", runsLoadedMsg{err: errors.New("boom")}, "Failed to load sweeps"},
		{"detail", indentDetailMsg{err: errors.New("boom")}, "Failed to load indent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.Update(tt.msg)
			if len(app.alerts) != 1 || !strings.HasPrefix(app.alerts[0].Message, tt.want) {
				t.Errorf("unexpected alerts %+v", app.alerts)
			}
		})
	}
}

func TestApp_AlertManagement(t *testing.T) {
	app := newTestApp(t)

	app.AddAlert(AlertInfo, "Test info")
	app.AddAlert(AlertWarning, "Test warning")
	app.AddAlert(AlertCritical, "Test critical")

	if len(app.alerts) != 3 {
		t.Errorf("expected 3 alerts, got %d", len(app.alerts))
	}
	if app.alerts[0].Message != "Test critical" {
		t.Errorf("expected newest alert first, got %q", app.alerts[0].Message)
	}
	if !strings.Contains(app.View(), "CRITICAL: Test critical") {
		t.Error("expected critical alert in view output")
	}

	app.ClearAlerts()
	if len(app.alerts) != 0 {
		t.Errorf("expected 0 alerts after clear, got %d", len(app.alerts))
	}
	if !strings.Contains(app.renderAlertBar(), "No alerts") {
		t.Error("expected empty alert bar")
	}
}

func TestApp_AlertLimit(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 15; i++ {
		app.AddAlert(AlertInfo, fmt.Sprintf("Alert %d", i))
	}
	if len(app.alerts) != 10 {
		t.Errorf("expected max 10 alerts, got %d", len(app.alerts))
	}
}

func TestApp_TickMessage(t *testing.T) {
	app := newTestApp(t)
	_, cmd := app.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("expected tick to return a new command")
	}
}
