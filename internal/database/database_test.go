package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/indentrecon/indentrecon/internal/config"
)

func TestNewInMemoryAppliesMigrations(t *testing.T) {
	db, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"items", "indents", "indent_lines", "realized_demand",
		"delivery_issue_lines", "stock_movements", "sweep_runs", "sweep_outcomes"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	m, err := NewMigrator(db)
	if err != nil {
		t.Fatal(err)
	}
	pending, err := m.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(pending))
	}
}

func TestMigratorDownAndUp(t *testing.T) {
	db, err := NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	m, err := NewMigrator(db)
	if err != nil {
		t.Fatal(err)
	}

	before, _ := m.CurrentVersion(ctx)
	res, err := m.Down(ctx)
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if res.FromVersion != before || res.ToVersion >= before {
		t.Errorf("unexpected result %+v", res)
	}

	status, err := m.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last := status[len(status)-1]; last.Applied {
		t.Errorf("migration %d should be rolled back", last.Version)
	}

	up, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(up.Applied) != 1 || up.ToVersion != before {
		t.Errorf("unexpected result %+v", up)
	}
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE b (id INTEGER);\n-- +migrate Down\nDROP TABLE b;")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/notes.txt":      {Data: []byte("ignored")},
	}

	migs, err := LoadMigrations(fsys, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(migs) != 2 {
		t.Fatalf("got %d migrations", len(migs))
	}
	if migs[0].Version != 1 || migs[0].DownSQL != "" {
		t.Errorf("first = %+v", migs[0])
	}
	if migs[1].Description != "second" || migs[1].DownSQL != "DROP TABLE b;" {
		t.Errorf("second = %+v", migs[1])
	}
}

func TestSplitStatements(t *testing.T) {
	script := `
-- leading comment
CREATE TABLE t (v TEXT DEFAULT 'a;b');
INSERT INTO t VALUES ('x');
-- trailing comment
`
	got := splitStatements(script)
	if len(got) != 2 {
		t.Fatalf("got %d statements: %q", len(got), got)
	}
	if got[1] != "INSERT INTO t VALUES ('x')" {
		t.Errorf("second statement = %q", got[1])
	}
}

func TestWithTransactionRollsBack(t *testing.T) {
	db, err := NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	boom := errors.New("boom")
	err = db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO items (sku, name, stock_uom) VALUES ('A', 'A', 'Nos')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("insert was not rolled back, %d rows", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db, err := NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := db.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("health check on closed db = %v", err)
	}
}

func TestBackupAndRecover(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "recon.db")
	backupDir := filepath.Join(dir, "backups")

	db, err := Open(dbPath, config.DatabaseConfig{Path: dbPath}, backupDir)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMigrator(db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Up(context.Background()); err != nil {
		t.Fatal(err)
	}

	backup, err := db.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if filepath.Dir(backup) != backupDir {
		t.Errorf("backup written to %s", backup)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	report, err := Recover(dbPath, backupDir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Result != RecoveryHealthy {
		t.Errorf("result = %s", report.Result)
	}

	fresh, err := Recover(filepath.Join(dir, "missing.db"), backupDir)
	if err != nil || fresh.Result != RecoveryHealthy {
		t.Errorf("missing database should be healthy, got %v %v", fresh, err)
	}
}
