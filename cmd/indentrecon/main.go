// indentrecon reconciles route indents against realized demand.
//
// It packages indent lines into crates, validates delivery issue edits and
// sweeps unprocessed indents into adjusted indents for any shortfall.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/indentrecon/indentrecon/internal/config"
	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/events"
	"github.com/indentrecon/indentrecon/internal/metrics"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/services/deliveryissues"
	"github.com/indentrecon/indentrecon/internal/services/demand"
	"github.com/indentrecon/indentrecon/internal/services/indents"
	"github.com/indentrecon/indentrecon/internal/services/shortfall"
	"github.com/indentrecon/indentrecon/internal/tui"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// v holds flag and INDENTRECON_* environment overrides.
var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "indentrecon",
	Short: "Indent quantity reconciliation",
	Long: `indentrecon keeps route indents in line with what was actually sold.

- Packaging: requested quantities are split into full crates and loose units.
- Differences: an observed difference is subtracted from the requested quantity.
- Delivery issues: missing, damaged and excess quantities are checked against
  what the delivery recorded.
- Shortfall sweep: unprocessed indents are compared with realized demand for
  their route and date, and at most one adjusted indent is created per indent.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		time.AfterFunc(10*time.Second, func() {
			slog.Error("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	tui.Version = Version
	tui.BuildTime = BuildTime
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to configuration file")
	flags.String("db", "", "database file (overrides config)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("json", false, "output JSON")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("database.path", flags.Lookup("db"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	_ = v.BindPFlag("json", flags.Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(differenceCmd())
	rootCmd.AddCommand(validateLineCmd())
	rootCmd.AddCommand(indentCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(demandCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(versionCmd())
}

// app carries everything a command needs once the store is open.
type app struct {
	cfg     *config.Config
	db      *database.DB
	logger  *slog.Logger
	metrics *metrics.Registry
	clock   util.Clock

	catalog *catalog.Service
	indents *indents.Service
	issues  *deliveryissues.Service
	demand  *demand.Service
	sweeps  *shortfall.Service
	events  events.Publisher
}

// withApp loads configuration, sets up logging, recovers and opens the
// database, applies pending migrations when migrate is set, and runs fn.
func withApp(ctx context.Context, migrate bool, fn func(ctx context.Context, a *app) error) error {
	cfg, cfgPath, err := config.Load(v.GetString("config"), true)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := config.ApplyOverrides(cfg, v); err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}

	logger, closeLog, err := setupLogging(cfg, v.GetBool("debug"))
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Debug("indentrecon starting",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cfgPath,
	)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}()

	if migrate {
		migrator, err := database.NewMigrator(db)
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}
		result, err := migrator.Up(ctx)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		if len(result.Applied) > 0 {
			slog.Info("applied migrations",
				"count", len(result.Applied),
				"to_version", result.ToVersion,
			)
		}
	}

	reg := metrics.NewRegistry()
	clock := util.SystemClock{}
	cat := catalog.NewService(db)
	publisher := events.FromConfig(cfg.Events, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("closing event publisher", "error", err)
		}
	}()

	a := &app{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		metrics: reg,
		clock:   clock,
		catalog: cat,
		indents: indents.NewService(db, cat, clock),
		issues:  deliveryissues.NewService(db, cat, reg, clock),
		demand:  demand.NewService(db),
		sweeps: shortfall.NewService(db, cat, cfg.Sweep).
			WithPublisher(publisher).
			WithMetrics(reg).
			WithClock(clock),
		events: publisher,
	}
	return fn(ctx, a)
}

// setupLogging installs the default slog logger. A configured log file gets
// JSON records; otherwise text goes to stderr unless the format asks for JSON.
func setupLogging(cfg *config.Config, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case config.LogLevelDebug:
			level = slog.LevelDebug
		case config.LogLevelWarn:
			level = slog.LevelWarn
		case config.LogLevelError:
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	logPath, err := config.EnsureLogDir(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	var handler slog.Handler
	closer := func() {}
	switch {
	case logPath != "":
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		closer = func() { logFile.Close() }
		handler = slog.NewJSONHandler(logFile, opts)
	case cfg.Logging.Format == "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

// openDatabase runs recovery on an existing file and opens it.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	dbPath, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring data directory: %w", err)
	}

	backupDir, err := config.BackupDir(cfg, dbPath)
	if err != nil {
		slog.Warn("failed to create backup directory", "error", err)
		backupDir = ""
	}

	if _, err := os.Stat(dbPath); err == nil {
		report, err := database.Recover(dbPath, backupDir)
		if err != nil {
			slog.Error("database recovery failed", "path", dbPath, "steps", len(report.Steps))
			return nil, fmt.Errorf("database recovery failed: %w", err)
		}
		switch report.Result {
		case database.RecoveryFromBackup:
			slog.Warn("database restored from backup", "backup", report.BackupUsed)
		case database.RecoveryWALReplayed:
			slog.Warn("database repaired by replaying WAL", "path", dbPath)
		default:
			slog.Debug("database integrity verified")
		}
	}

	db, err := database.Open(dbPath, cfg.Database, backupDir)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func jsonOutput() bool {
	return v.GetBool("json")
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func printTable(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput() {
				return printJSON(map[string]string{"version": Version, "build_time": BuildTime})
			}
			fmt.Printf("indentrecon version %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}

// bindFlag binds a command flag onto a configuration key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}
