package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/indentrecon/indentrecon/internal/config"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/services/demand"
	"github.com/indentrecon/indentrecon/internal/services/indents"
	"github.com/indentrecon/indentrecon/internal/services/shortfall"
	tu "github.com/indentrecon/indentrecon/internal/testutil"
	"github.com/indentrecon/indentrecon/internal/util"
)

// testServices builds console services over a migrated in-memory database
// holding the MILK-500 and CURD-1K items.
func testServices(t *testing.T) (Services, *tu.TestDB) {
	t.Helper()

	db := tu.NewTestDB(t)
	items := repository.NewItemRepository(db.DB.DB)
	for _, it := range []*models.Item{tu.FixtureItem(), tu.FixtureKgItem()} {
		if err := items.Upsert(context.Background(), nil, it); err != nil {
			t.Fatalf("seeding item %s: %v", it.SKU, err)
		}
	}

	clock := util.NewFixedClock(tu.FixtureDate)
	cat := catalog.NewService(db.DB)
	svcs := Services{
		Indents: indents.NewService(db.DB, cat, clock),
		Sweeps:  shortfall.NewService(db.DB, cat, config.SweepConfig{Workers: 2, ClaimTimeoutSeconds: 30}).WithClock(clock),
	}
	return svcs, db
}

// newTestApp creates an App sized to 120x40 and marked ready.
func newTestApp(t *testing.T) *App {
	t.Helper()
	svcs, _ := testServices(t)
	return readyApp(New(svcs, config.Default(), util.NewFixedClock(tu.FixtureDate)))
}

// newSeededApp creates an App with one R-NORTH indent whose actual MILK-500
// quantity (90) falls 30 short of the realized demand (120).
func newSeededApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()
	svcs, db := testServices(t)

	_, err := svcs.Indents.CreateIndent(ctx, indents.CreateIndentInput{
		Route:    "R-NORTH",
		Date:     tu.FixtureDate,
		Facility: "Outlet 7",
		Lines: []indents.LineInput{
			{SKU: "MILK-500", RequestedQty: tu.Dec("100"), Difference: tu.Dec("10")},
		},
	})
	if err != nil {
		t.Fatalf("creating indent: %v", err)
	}
	_, err = demand.NewService(db.DB).Import(ctx, []*models.RealizedDemand{
		{Route: "R-NORTH", Date: tu.FixtureDate, SKU: "MILK-500", Quantity: tu.Dec("120")},
	})
	if err != nil {
		t.Fatalf("importing demand: %v", err)
	}

	return readyApp(New(svcs, config.Default(), util.NewFixedClock(tu.FixtureDate)))
}

func readyApp(app *App) *App {
	app.width = 120
	app.height = 40
	app.ready = true
	app.updateViewDimensions()
	return app
}

// press sends msg to the app and runs any command it returns, feeding the
// resulting messages back until the app settles.
func press(t *testing.T, app *App, msg tea.Msg) {
	t.Helper()
	_, cmd := app.Update(msg)
	runCmd(t, app, cmd)
}

func runCmd(t *testing.T, app *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			runCmd(t, app, c)
		}
	default:
		press(t, app, msg)
	}
}

// keyMsg creates a tea.KeyMsg for a regular character key.
func keyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// specialKeyMsg creates a tea.KeyMsg for a special key type.
func specialKeyMsg(keyType tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: keyType}
}
