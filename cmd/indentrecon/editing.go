package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/services/catalog"
	"github.com/indentrecon/indentrecon/internal/services/deliveryissues"
	"github.com/indentrecon/indentrecon/internal/services/indents"
	"github.com/indentrecon/indentrecon/internal/util"
)

// parseLineSpec reads SKU=QTY or SKU=QTY:DIFF.
func parseLineSpec(spec string) (indents.LineInput, error) {
	sku, rest, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(sku) == "" {
		return indents.LineInput{}, reconcile.NewError(reconcile.KindInvalidInput, "line", "want SKU=QTY[:DIFF], got %q", spec)
	}
	qtyRaw, diffRaw, hasDiff := strings.Cut(rest, ":")
	qty, err := parseQty("requested_qty", qtyRaw)
	if err != nil {
		return indents.LineInput{}, err
	}
	in := indents.LineInput{SKU: strings.TrimSpace(sku), RequestedQty: qty}
	if hasDiff {
		if in.Difference, err = parseQty("difference", diffRaw); err != nil {
			return indents.LineInput{}, err
		}
	}
	return in, nil
}

func printIndent(ind *models.Indent) {
	fmt.Printf("%s  %s  %s  %s\n", ind.ID, ind.Route, util.FormatDate(ind.Date), ind.Status)
	rows := make([]table.Row, len(ind.Lines))
	for i, l := range ind.Lines {
		rows[i] = indentLineRow(l)
	}
	printTable(indentLineHeader, rows)
}

var indentLineHeader = table.Row{"#", "Line", "SKU", "UOM", "Requested", "Capacity", "Crates", "Loose", "Difference", "Actual"}

func indentLineRow(l models.IndentLine) table.Row {
	capacity := "-"
	if l.PackagingCapacity != nil {
		capacity = fmt.Sprint(*l.PackagingCapacity)
	}
	return table.Row{l.Idx, l.ID, l.SKU, l.UOM, l.RequestedQty, capacity, l.Crates, l.Loose, l.Difference, l.ActualQty}
}

func printIndentLine(l *models.IndentLine) error {
	if jsonOutput() {
		return printJSON(l)
	}
	printTable(indentLineHeader, []table.Row{indentLineRow(*l)})
	return nil
}

// ============================================================================
// INDENT EDITING
// ============================================================================

func indentCreateCmd() *cobra.Command {
	var (
		route, date, facility string
		lines                 []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an unprocessed indent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := indents.CreateIndentInput{Route: route, Facility: facility}
			for _, spec := range lines {
				li, err := parseLineSpec(spec)
				if err != nil {
					return err
				}
				in.Lines = append(in.Lines, li)
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				in.Date = util.StartOfDay(a.clock.Now())
				if date != "" {
					d, err := util.ParseDate(date)
					if err != nil {
						return err
					}
					in.Date = d
				}
				res, err := a.indents.CreateIndent(ctx, in)
				if err != nil {
					return err
				}
				for _, w := range res.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				if jsonOutput() {
					return printJSON(res)
				}
				printIndent(res.Indent)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "route")
	cmd.Flags().StringVar(&date, "date", "", "route date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&facility, "facility", "", "ordering facility")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "SKU=QTY or SKU=QTY:DIFF, repeatable")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}

func indentAddLineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-line INDENT_ID SKU=QTY[:DIFF]",
		Short: "Append a line to an unprocessed indent",
		Args:  idArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseLineSpec(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				line, err := a.indents.AddLine(ctx, args[0], in)
				if line == nil {
					return err
				}
				if err != nil {
					fmt.Fprintln(os.Stderr, "warning:", err)
				}
				return printIndentLine(line)
			})
		},
	}
}

// indentSetCmd builds a command that changes one field of an indent line.
func indentSetCmd(use, short, field string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  idArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var qty decimal.Decimal
			if field != "sku" {
				var err error
				if qty, err = parseQty(field, args[1]); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				var (
					line *models.IndentLine
					err  error
				)
				switch field {
				case "sku":
					line, err = a.indents.SetSKU(ctx, args[0], args[1])
				case "difference":
					line, err = a.indents.SetDifference(ctx, args[0], qty)
				default:
					line, err = a.indents.SetRequestedQty(ctx, args[0], qty)
				}
				if line == nil {
					return err
				}
				if err != nil {
					fmt.Fprintln(os.Stderr, "warning:", err)
				}
				return printIndentLine(line)
			})
		},
	}
}

func indentDeleteLineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-line LINE_ID",
		Short: "Delete a line from an unprocessed indent",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				if err := a.indents.DeleteLine(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted line %s\n", args[0])
				return nil
			})
		},
	}
}

func indentPrePopulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepopulate INDENT_ID",
		Short: "Add a zero-quantity line for every catalogued item",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				res, err := a.indents.PrePopulate(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(res)
				}
				fmt.Printf("added %d lines, %d already present\n", res.Added, res.Skipped)
				return nil
			})
		},
	}
}

func indentReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready INDENT_ID",
		Short: "Check that an indent has a line with a positive quantity",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				if err := a.indents.CheckReady(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("indent %s is ready\n", args[0])
				return nil
			})
		},
	}
}

// ============================================================================
// DELIVERY ISSUE NOTES
// ============================================================================

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issue", Short: "Record missing, damaged and excess delivery items"}
	cmd.AddCommand(issueDeliveriesCmd())
	cmd.AddCommand(issueNoteCmd("open DELIVERY_NOTE_ID", "Open a draft issue note against a delivery",
		func(ctx context.Context, a *app, id string) (*models.DeliveryIssueNote, error) {
			return a.issues.Open(ctx, id)
		}))
	cmd.AddCommand(issueNoteCmd("show NOTE_ID", "Show an issue note with its lines",
		func(ctx context.Context, a *app, id string) (*models.DeliveryIssueNote, error) {
			return a.issues.GetNote(ctx, id)
		}))
	cmd.AddCommand(issueNoteCmd("regenerate NOTE_ID", "Rebuild the delivered lines of a draft note",
		func(ctx context.Context, a *app, id string) (*models.DeliveryIssueNote, error) {
			return a.issues.Regenerate(ctx, id)
		}))
	cmd.AddCommand(issueAddLineCmd())
	cmd.AddCommand(issueSetCmd())
	cmd.AddCommand(issueDeleteLineCmd())
	cmd.AddCommand(issueSubmitCmd())
	cmd.AddCommand(issueMovementsCmd())
	return cmd
}

var issueLineHeader = table.Row{"#", "Line", "Item", "UOM", "Qty", "Factor", "Stock qty", "Delivered", "Missing", "Damaged", "Excess", "Owned"}

func issueLineRow(l models.DeliveryIssueLine) table.Row {
	return table.Row{
		l.Idx, l.ID, l.ItemCode, l.UOM, l.Qty, l.ConversionFactor, l.StockQty,
		l.DeliveredQty, l.MissingQty, l.DamagedQty, l.ExcessQty, l.BelongsToDelivery,
	}
}

func printIssueNote(n *models.DeliveryIssueNote) {
	fmt.Printf("%s  delivery %s  %s\n", n.ID, n.DeliveryNoteID, n.Status)
	rows := make([]table.Row, len(n.Lines))
	for i, l := range n.Lines {
		rows[i] = issueLineRow(l)
	}
	printTable(issueLineHeader, rows)
}

// printIssueLine shows a saved line and any rule violation that was corrected
// while saving it.
func printIssueLine(l *models.DeliveryIssueLine, violation error) error {
	var rerr *reconcile.Error
	if violation != nil && !errors.As(violation, &rerr) {
		return violation
	}
	if jsonOutput() {
		res := map[string]any{"line": l}
		if rerr != nil {
			res["violation"] = map[string]string{"kind": rerr.Kind.String(), "field": rerr.Field, "message": rerr.Message}
		}
		return printJSON(res)
	}
	printTable(issueLineHeader, []table.Row{issueLineRow(*l)})
	if rerr != nil {
		fmt.Printf("%s on %s: %s\n", rerr.Kind, rerr.Field, rerr.Message)
	}
	return nil
}

func issueDeliveriesCmd() *cobra.Command {
	var (
		route string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List delivery notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				notes, err := a.issues.ListDeliveries(ctx, route, limit)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(notes)
				}
				rows := make([]table.Row, len(notes))
				for i, n := range notes {
					rows[i] = table.Row{n.ID, util.FormatDate(n.Date), n.Route}
				}
				printTable(table.Row{"ID", "Date", "Route"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "route")
	cmd.Flags().IntVar(&limit, "limit", 50, "notes to show")
	return cmd
}

func issueNoteCmd(use, short string, load func(ctx context.Context, a *app, id string) (*models.DeliveryIssueNote, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				note, err := load(ctx, a, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(note)
				}
				printIssueNote(note)
				return nil
			})
		},
	}
}

func issueAddLineCmd() *cobra.Command {
	var uom, qty, excess, damaged string
	cmd := &cobra.Command{
		Use:   "add-line NOTE_ID ITEM_CODE",
		Short: "Add a freestanding line for an item outside the delivery",
		Args:  idArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := deliveryissues.AddLineInput{ItemCode: args[1], UOM: uom}
			var err error
			if in.Qty, err = parseQty("qty", qty); err != nil {
				return err
			}
			if in.ExcessQty, err = parseQty("excess_qty", excess); err != nil {
				return err
			}
			if in.DamagedQty, err = parseQty("damaged_qty", damaged); err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				line, err := a.issues.AddLine(ctx, args[0], in)
				if line == nil {
					return err
				}
				return printIssueLine(line, err)
			})
		},
	}
	cmd.Flags().StringVar(&uom, "uom", "", "unit of measure (default the stock UOM)")
	cmd.Flags().StringVar(&qty, "qty", "0", "quantity in the chosen UOM")
	cmd.Flags().StringVar(&excess, "excess", "0", "excess quantity")
	cmd.Flags().StringVar(&damaged, "damaged", "0", "damaged quantity")
	return cmd
}

func issueSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set LINE_ID FIELD VALUE",
		Short: "Change one field of an issue line",
		Long: "FIELD is one of item_code, uom, qty, conversion_factor, missing_qty, damaged_qty or excess_qty.\n" +
			"A corrective quantity that breaks a rule is reset and saved; the violation is printed.",
		Args: idArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				line, err := a.issues.SetField(ctx, args[0], reconcile.DeliveryField(args[1]), args[2])
				if line == nil {
					return err
				}
				return printIssueLine(line, err)
			})
		},
	}
}

func issueDeleteLineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-line LINE_ID",
		Short: "Delete a freestanding issue line",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				if err := a.issues.DeleteLine(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted line %s\n", args[0])
				return nil
			})
		},
	}
}

func printMovements(ms []*models.StockMovement) {
	rows := make([]table.Row, len(ms))
	for i, m := range ms {
		rows[i] = table.Row{m.ID, m.ItemCode, m.Quantity, m.Target, util.FormatDateTime(m.CreatedAt)}
	}
	printTable(table.Row{"Movement", "Item", "Quantity", "Target", "Created"}, rows)
}

func issueSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit NOTE_ID",
		Short: "Submit an issue note and book its stock movements",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				res, err := a.issues.Submit(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(res)
				}
				printMovements(res.Movements)
				return nil
			})
		},
	}
}

func issueMovementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "movements NOTE_ID",
		Short: "List the stock movements booked by a submitted note",
		Args:  idArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				ms, err := a.issues.StockMovements(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(ms)
				}
				printMovements(ms)
				return nil
			})
		},
	}
}

// ============================================================================
// ITEMS
// ============================================================================

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Manage the item master"}
	cmd.AddCommand(itemSaveCmd())
	cmd.AddCommand(itemListCmd())
	cmd.AddCommand(itemShowCmd())
	return cmd
}

func itemRow(it *models.Item) table.Row {
	capacity := "-"
	if it.PackagingCapacity != nil {
		capacity = fmt.Sprint(*it.PackagingCapacity)
	}
	convs := make([]string, 0, len(it.Conversions))
	for _, c := range it.Conversions {
		convs = append(convs, c.UOM+"="+c.Factor.String())
	}
	return table.Row{it.SKU, it.Name, it.StockUOM, capacity, strings.Join(convs, " ")}
}

var itemHeader = table.Row{"SKU", "Name", "Stock UOM", "Capacity", "Conversions"}

func itemSaveCmd() *cobra.Command {
	var (
		in          catalog.ItemInput
		capacity    int
		conversions map[string]string
	)
	cmd := &cobra.Command{
		Use:   "save SKU",
		Short: "Create or replace an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.SKU = args[0]
			if cmd.Flags().Changed("capacity") {
				in.PackagingCapacity = &capacity
			}
			if len(conversions) > 0 {
				in.Conversions = make(map[string]decimal.Decimal, len(conversions))
			}
			for uom, raw := range conversions {
				f, err := parseQty("conversion", raw)
				if err != nil {
					return err
				}
				in.Conversions[uom] = f
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				item, err := a.catalog.SaveItem(ctx, in)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(item)
				}
				printTable(itemHeader, []table.Row{itemRow(item)})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.StockUOM, "stock-uom", "Nos", "stock unit of measure")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "units per crate (omit for loose-only items)")
	cmd.Flags().StringToStringVar(&conversions, "conversion", nil, "UOM=FACTOR stock units per UOM, repeatable")
	return cmd
}

func itemListCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				list, err := a.catalog.ListItems(ctx, models.Pagination{Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(list)
				}
				rows := make([]table.Row, len(list.Items))
				for i, it := range list.Items {
					rows[i] = itemRow(it)
				}
				printTable(itemHeader, rows)
				fmt.Printf("page %d/%d, %d items\n", list.Page, list.TotalPages, list.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "items per page")
	return cmd
}

func itemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show SKU",
		Short: "Show an item with its conversions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				item, err := a.catalog.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(item)
				}
				printTable(itemHeader, []table.Row{itemRow(item)})
				return nil
			})
		},
	}
}
