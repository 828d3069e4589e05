package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RecoveryResult is the outcome of a startup recovery attempt.
type RecoveryResult int

const (
	RecoveryHealthy RecoveryResult = iota
	RecoveryWALReplayed
	RecoveryFromBackup
	RecoveryFailed
)

func (r RecoveryResult) String() string {
	switch r {
	case RecoveryHealthy:
		return "healthy"
	case RecoveryWALReplayed:
		return "wal_replayed"
	case RecoveryFromBackup:
		return "restored_from_backup"
	case RecoveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RecoveryStep records one phase of recovery.
type RecoveryStep struct {
	Name      string
	Succeeded bool
	Message   string
	Duration  time.Duration
}

// RecoveryReport describes what Recover did.
type RecoveryReport struct {
	Result     RecoveryResult
	Path       string
	BackupUsed string
	Steps      []RecoveryStep
}

// Recover checks the database file before it is opened for use. A damaged
// file is first repaired by replaying its WAL, then replaced with the newest
// backup that passes an integrity check. The damaged file is kept alongside
// with a .corrupted suffix.
func Recover(dbPath, backupDir string) (*RecoveryReport, error) {
	report := &RecoveryReport{Path: dbPath}

	if dbPath == ":memory:" {
		return report, nil
	}
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		report.Steps = append(report.Steps, RecoveryStep{Name: "exists", Succeeded: true, Message: "new database"})
		return report, nil
	}

	check := report.step("integrity_check", func() (string, error) { return checkFile(dbPath) })
	if check.Succeeded {
		return report, nil
	}
	slog.Warn("database failed integrity check", "path", dbPath, "error", check.Message)

	if _, err := os.Stat(dbPath + "-wal"); err == nil {
		replay := report.step("wal_replay", func() (string, error) { return replayWAL(dbPath) })
		if replay.Succeeded {
			recheck := report.step("post_wal_check", func() (string, error) { return checkFile(dbPath) })
			if recheck.Succeeded {
				report.Result = RecoveryWALReplayed
				slog.Info("database repaired by WAL replay", "path", dbPath)
				return report, nil
			}
		}
	}

	if backupDir != "" {
		restore := report.step("restore_backup", func() (string, error) { return restoreNewestBackup(dbPath, backupDir) })
		if restore.Succeeded {
			report.Result = RecoveryFromBackup
			report.BackupUsed = restore.Message
			slog.Warn("database restored from backup", "path", dbPath, "backup", restore.Message)
			return report, nil
		}
	}

	report.Result = RecoveryFailed
	return report, fmt.Errorf("database %s is damaged and could not be recovered", dbPath)
}

func (r *RecoveryReport) step(name string, fn func() (string, error)) RecoveryStep {
	start := time.Now()
	msg, err := fn()
	s := RecoveryStep{Name: name, Succeeded: err == nil, Message: msg, Duration: time.Since(start)}
	if err != nil {
		s.Message = err.Error()
	}
	r.Steps = append(r.Steps, s)
	return s
}

func checkFile(path string) (string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := integrityResults(ctx, db)
	if err != nil {
		return "", err
	}
	if len(results) == 1 && results[0] == "ok" {
		return "ok", nil
	}
	return "", fmt.Errorf("integrity check: %s", strings.Join(results, "; "))
}

func replayWAL(path string) (string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_txlock=immediate", path))
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return "", fmt.Errorf("WAL checkpoint: %w", err)
	}
	return "checkpointed", nil
}

func restoreNewestBackup(dbPath, backupDir string) (string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return "", fmt.Errorf("reading backup directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(backupDir, e.Name()), info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", errors.New("no backups found")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })

	for _, c := range candidates {
		if _, err := checkFile(c.path); err != nil {
			slog.Debug("skipping damaged backup", "path", c.path, "error", err)
			continue
		}

		damaged := dbPath + ".corrupted." + time.Now().UTC().Format("20060102-150405")
		if err := os.Rename(dbPath, damaged); err != nil {
			slog.Warn("could not preserve damaged database", "path", dbPath, "error", err)
		}
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")

		if err := copyFile(c.path, dbPath); err != nil {
			return "", fmt.Errorf("copying backup: %w", err)
		}
		return c.path, nil
	}
	return "", errors.New("no usable backup found")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return out.Sync()
}
