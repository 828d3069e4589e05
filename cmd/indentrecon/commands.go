package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/indentrecon/indentrecon/internal/database"
	"github.com/indentrecon/indentrecon/internal/database/seed"
	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/report"
	"github.com/indentrecon/indentrecon/internal/tui"
	"github.com/indentrecon/indentrecon/internal/util"
)

func parseQty(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, reconcile.NewError(reconcile.KindInvalidInput, field, "not a number: %q", s)
	}
	return d, nil
}

// ============================================================================
// SCHEMA AND SEED
// ============================================================================

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *database.Migrator) error {
				res, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("schema at version %d (%d applied)\n", res.ToVersion, len(res.Applied))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the newest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *database.Migrator) error {
				res, err := m.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("schema rolled back from version %d to %d\n", res.FromVersion, res.ToVersion)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *database.Migrator) error {
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(migrations)
				}
				rows := make([]table.Row, len(migrations))
				for i, mg := range migrations {
					applied := "pending"
					if mg.Applied {
						applied = util.FormatDateTime(mg.AppliedAt)
					}
					rows[i] = table.Row{mg.Version, mg.Description, applied}
				}
				printTable(table.Row{"Version", "Description", "Applied"}, rows)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *database.Migrator) error) error {
	return withApp(ctx, false, func(ctx context.Context, a *app) error {
		m, err := database.NewMigrator(a.db)
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}
		return fn(ctx, m)
	})
}

func seedCmd() *cobra.Command {
	var (
		datasetPath string
		date        string
		routes      int
		perRoute    int
		randomSeed  int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo items, indents, demand and delivery notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := seed.DefaultDataset()
			if datasetPath != "" {
				ds, err = seed.LoadDataset(datasetPath)
			}
			if err != nil {
				return fmt.Errorf("loading dataset: %w", err)
			}

			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				day := util.StartOfDay(a.clock.Now())
				if date != "" {
					if day, err = util.ParseDate(date); err != nil {
						return err
					}
				}
				scfg := seed.DefaultConfig(day)
				scfg.Routes = routes
				scfg.IndentsPerRoute = perRoute
				if randomSeed != 0 {
					scfg.RandomSeed = randomSeed
				}

				res, err := seed.NewGenerator(a.db.DB, scfg).Generate(ctx, ds)
				if err != nil {
					return fmt.Errorf("generating seed data: %w", err)
				}
				for _, w := range res.Warnings {
					a.logger.Warn("seed warning", "warning", w)
				}
				if jsonOutput() {
					return printJSON(res)
				}
				printTable(table.Row{"Items", "Indents", "Lines", "Demand", "Orders", "Deliveries"}, []table.Row{{
					res.Items, res.Indents, res.IndentLines, res.DemandRows, res.OrderLines, res.DeliveryNotes,
				}})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "YAML dataset (defaults to the built-in one)")
	cmd.Flags().StringVar(&date, "date", "", "route date of generated indents (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&routes, "random-routes", 0, "routes to fill with random indents")
	cmd.Flags().IntVar(&perRoute, "per-route", 4, "random indents per route")
	cmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "random seed for generated data")
	return cmd
}

// ============================================================================
// QUANTITY CALCULATIONS
// ============================================================================

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert SKU QUANTITY",
		Short: "Split a quantity into crates and loose units",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQty("quantity", args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				p, err := a.catalog.Convert(ctx, args[0], qty)
				if reconcile.IsWarning(err) {
					fmt.Fprintln(os.Stderr, "warning:", err)
				} else if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(map[string]any{
						"sku":        args[0],
						"quantity":   qty.String(),
						"capacity":   p.Capacity,
						"crates":     p.Crates,
						"loose":      p.Loose.String(),
						"actual_qty": p.ActualQty.String(),
					})
				}
				report.WritePackaging(os.Stdout, args[0], qty, p)
				return nil
			})
		},
	}
}

func differenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "difference REQUESTED DIFFERENCE",
		Short: "Apply an observed difference to a requested quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested, err := parseQty("requested_qty", args[0])
			if err != nil {
				return err
			}
			if requested.IsNegative() {
				return reconcile.NewError(reconcile.KindInvalidInput, "requested_qty", "must not be negative")
			}
			diff, err := parseQty("difference", args[1])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(map[string]string{
					"requested_qty": requested.String(),
					"difference":    diff.String(),
					"actual_qty":    reconcile.ApplyDifference(requested, diff).String(),
				})
			}
			report.WriteDifference(os.Stdout, requested, diff)
			return nil
		},
	}
}

func validateLineCmd() *cobra.Command {
	var (
		item    string
		owned   bool
		changed string
		prior   string

		delivered, missing, damaged, extra string
	)
	cmd := &cobra.Command{
		Use:   "validate-line",
		Short: "Check a delivery issue line after one field changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := models.DeliveryIssueLine{ItemCode: item, BelongsToDelivery: owned}
			for _, f := range []struct {
				name string
				raw  string
				dst  *decimal.Decimal
			}{
				{"delivered_qty", delivered, &line.DeliveredQty},
				{"missing_qty", missing, &line.MissingQty},
				{"damaged_qty", damaged, &line.DamagedQty},
				{"excess_qty", extra, &line.ExcessQty},
			} {
				d, err := parseQty(f.name, f.raw)
				if err != nil {
					return err
				}
				*f.dst = d
			}
			change := reconcile.Change{Field: reconcile.DeliveryField(changed)}
			if prior != "" {
				d, err := parseQty("prior", prior)
				if err != nil {
					return err
				}
				change.Prior = d
			}

			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				out, verr := a.issues.ValidateLine(line, change)
				var rerr *reconcile.Error
				if verr != nil && !errors.As(verr, &rerr) {
					return verr
				}
				if jsonOutput() {
					res := map[string]any{
						"item_code":     out.ItemCode,
						"delivered_qty": out.DeliveredQty.String(),
						"missing_qty":   out.MissingQty.String(),
						"damaged_qty":   out.DamagedQty.String(),
						"excess_qty":    out.ExcessQty.String(),
					}
					if rerr != nil {
						res["violation"] = map[string]string{"kind": rerr.Kind.String(), "field": rerr.Field, "message": rerr.Message}
					}
					return printJSON(res)
				}
				report.WriteIssueLine(os.Stdout, out)
				if rerr != nil {
					fmt.Printf("%s on %s: %s\n", rerr.Kind, rerr.Field, rerr.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "item code")
	cmd.Flags().BoolVar(&owned, "owned", true, "line was generated from the delivery")
	cmd.Flags().StringVar(&delivered, "delivered", "0", "delivered quantity")
	cmd.Flags().StringVar(&missing, "missing", "0", "missing quantity")
	cmd.Flags().StringVar(&damaged, "damaged", "0", "damaged quantity")
	cmd.Flags().StringVar(&extra, "excess", "0", "excess quantity")
	cmd.Flags().StringVar(&changed, "changed", "", "field that changed (missing_qty, damaged_qty, excess_qty, ...)")
	cmd.Flags().StringVar(&prior, "prior", "", "value of the changed field before the edit")
	_ = cmd.MarkFlagRequired("changed")
	return cmd
}

// ============================================================================
// INDENTS AND DEMAND
// ============================================================================

func indentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "indent", Short: "Create, edit and inspect indents"}
	cmd.AddCommand(indentListCmd())
	cmd.AddCommand(indentShowCmd())
	cmd.AddCommand(indentCreateCmd())
	cmd.AddCommand(indentAddLineCmd())
	cmd.AddCommand(indentSetCmd("set-sku LINE_ID SKU", "Change the SKU of a line", "sku"))
	cmd.AddCommand(indentSetCmd("set-qty LINE_ID QTY", "Change the requested quantity of a line", "requested_qty"))
	cmd.AddCommand(indentSetCmd("set-difference LINE_ID QTY", "Record the shortfall of a line", "difference"))
	cmd.AddCommand(indentDeleteLineCmd())
	cmd.AddCommand(indentPrePopulateCmd())
	cmd.AddCommand(indentReadyCmd())
	return cmd
}

// idArgs accepts exactly n arguments, the first of which is a record ID.
func idArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return err
		}
		if !util.IsValidID(args[0]) {
			return reconcile.NewError(reconcile.KindInvalidInput, "id", "%q is not a valid id", args[0])
		}
		return nil
	}
}

func indentListCmd() *cobra.Command {
	var (
		status, route, date string
		includeAdjusted     bool
		page, pageSize      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.IndentFilter{
				Status:          models.IndentStatus(strings.ToUpper(status)),
				Route:           route,
				IncludeAdjusted: includeAdjusted,
			}
			if status != "" && !filter.Status.Valid() {
				return reconcile.NewError(reconcile.KindInvalidInput, "status", "unknown status %q", status)
			}
			if date != "" {
				d, err := util.ParseDate(date)
				if err != nil {
					return err
				}
				filter.Date = &d
			}

			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				list, err := a.indents.ListIndents(ctx, filter, models.Pagination{Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(list)
				}
				rows := make([]table.Row, len(list.Indents))
				for i, ind := range list.Indents {
					source := ""
					if ind.SourceIndentID != nil {
						source = *ind.SourceIndentID
					}
					rows[i] = table.Row{ind.ID, util.FormatDate(ind.Date), ind.Route, ind.Facility, ind.Status, source}
				}
				printTable(table.Row{"ID", "Date", "Route", "Facility", "Status", "Adjusts"}, rows)
				fmt.Printf("page %d/%d, %d indents\n", list.Page, list.TotalPages, list.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "UNPROCESSED, PROCESSED or PROCESSED_NO_ACTION")
	cmd.Flags().StringVar(&route, "route", "", "route")
	cmd.Flags().StringVar(&date, "date", "", "route date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&includeAdjusted, "include-adjusted", false, "include adjusted indents")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "indents per page")
	return cmd
}

func indentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an indent with its lines",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				ind, err := a.indents.GetIndent(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(ind)
				}
				printIndent(ind)
				return nil
			})
		},
	}
}

func demandCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "demand", Short: "Manage realized demand"}

	cmd.AddCommand(&cobra.Command{
		Use:   "aggregate",
		Short: "Fold confirmed order lines into realized demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				res, err := a.demand.Aggregate(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(res)
				}
				fmt.Printf("aggregated %d order lines into %d demand rows\n", res.OrderLines, res.Rows)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE.xlsx",
		Short: "Import realized demand from a spreadsheet (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rows []*models.RealizedDemand
				err  error
			)
			if args[0] == "-" {
				rows, err = report.ReadDemand(cmd.InOrStdin())
			} else {
				rows, err = report.ReadDemandFile(args[0])
			}
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				n, err := a.demand.Import(ctx, rows)
				if err != nil {
					return err
				}
				fmt.Printf("imported %d demand rows\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "template FILE.xlsx",
		Short: "Write an empty demand import spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := report.WriteDemandTemplate(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List realized demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				rows, err := a.demand.List(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(rows)
				}
				report.WriteDemand(os.Stdout, rows)
				return nil
			})
		},
	})

	return cmd
}

// ============================================================================
// SWEEPS
// ============================================================================

func sweepCmd() *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Create adjusted indents for every shortfall",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				summary, err := a.sweeps.RunSweep(ctx)
				if err != nil {
					return err
				}
				if reportPath != "" {
					if err := report.WriteSweepReportFile(reportPath, summary); err != nil {
						return fmt.Errorf("writing sweep report: %w", err)
					}
				}
				if jsonOutput() {
					return printJSON(summary)
				}
				report.WriteSweepSummary(os.Stdout, summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "also write the outcomes to this .xlsx file")
	cmd.Flags().Int("workers", 0, "groups processed concurrently (overrides config)")
	bindFlag(cmd, "sweep.workers", "workers")

	cmd.AddCommand(&cobra.Command{
		Use:   "runs",
		Short: "List recent sweep runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				runs, err := a.sweeps.ListRuns(ctx, 20)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(runs)
				}
				rows := make([]table.Row, len(runs))
				for i, r := range runs {
					rows[i] = table.Row{r.RunID, util.FormatDateTime(r.StartedAt), r.Processed, r.Created, r.WithoutShortfall, r.AlreadyAdjusted, r.Errors}
				}
				printTable(table.Row{"Run", "Started", "Indents", "Created", "No shortfall", "Skipped", "Errors"}, rows)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the outcomes of a sweep run",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				summary, err := a.sweeps.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(summary)
				}
				report.WriteSweepSummary(os.Stdout, summary)
				return nil
			})
		},
	})

	return cmd
}

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the terminal console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				slog.Info("starting console", "db", a.db.Path())
				svcs := tui.Services{Indents: a.indents, Sweeps: a.sweeps}
				if err := tui.Run(ctx, svcs, a.cfg, a.clock); err != nil {
					return fmt.Errorf("console error: %w", err)
				}
				return nil
			})
		},
	}
}
