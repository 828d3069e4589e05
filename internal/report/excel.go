package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/util"
)

const (
	demandSheet   = "Demand"
	summarySheet  = "Summary"
	outcomesSheet = "Outcomes"
)

// demandColumns is the header expected on the demand sheet, in any order.
var demandColumns = []string{"route", "date", "sku", "quantity"}

// ReadDemandFile loads realized demand rows from an xlsx workbook.
func ReadDemandFile(path string) (rows []*models.RealizedDemand, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	return readDemand(f)
}

// ReadDemand loads realized demand rows from an xlsx stream.
func ReadDemand(r io.Reader) ([]*models.RealizedDemand, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}
	defer f.Close()
	return readDemand(f)
}

// readDemand reads the "Demand" sheet, or the first sheet when there is none.
// The first row names the columns. Blank rows are skipped; every bad cell is
// reported.
func readDemand(f *excelize.File) ([]*models.RealizedDemand, error) {
	sheet := demandSheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	cols := make(map[string]int)
	for i, h := range grid[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range demandColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("sheet %s: missing column %q", sheet, c)
		}
	}

	cell := func(row []string, name string) string {
		if i := cols[name]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var (
		rows []*models.RealizedDemand
		errs []error
	)
	for n, row := range grid[1:] {
		rowNum := n + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		date, err := util.ParseDate(cell(row, "date"))
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", rowNum, err))
			continue
		}
		qty, err := decimal.NewFromString(cell(row, "quantity"))
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: invalid quantity %q", rowNum, cell(row, "quantity")))
			continue
		}
		rows = append(rows, &models.RealizedDemand{
			Route:    cell(row, "route"),
			Date:     date,
			SKU:      cell(row, "sku"),
			Quantity: qty,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rows, nil
}

// WriteDemandTemplate writes an empty demand workbook with the expected
// header.
func WriteDemandTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", demandSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(demandSheet, "A1", &[]any{"Route", "Date", "SKU", "Quantity"}); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteSweepReportFile exports a sweep run to an xlsx workbook.
func WriteSweepReportFile(path string, s *models.SweepSummary) error {
	f, err := sweepWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// WriteSweepReport writes a sweep run as an xlsx workbook to w.
func WriteSweepReport(w io.Writer, s *models.SweepSummary) error {
	f, err := sweepWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func sweepWorkbook(s *models.SweepSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, err
	}

	summary := [][]any{
		{"Run", s.RunID},
		{"Started", util.FormatDateTime(s.StartedAt)},
		{"Finished", util.FormatDateTime(s.FinishedAt)},
		{"Processed", s.Processed},
		{"Created", s.Created},
		{"With shortfall", s.WithShortfall},
		{"No shortfall", s.WithoutShortfall},
		{"Already adjusted", s.AlreadyAdjusted},
		{"Errors", s.Errors},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := f.NewSheet(outcomesSheet); err != nil {
		f.Close()
		return nil, err
	}
	header := []any{"Indent", "Route", "Date", "Status", "Adjusted indent", "Shortfall lines", "Message", "Warnings"}
	if err := f.SetSheetRow(outcomesSheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	for i, o := range s.Details {
		row := []any{o.IndentID, o.Route, o.Date, o.Status.String(), o.AdjustedIndentID, o.ShortfallLines, o.Message, strings.Join(o.Warnings, "\n")}
		if err := f.SetSheetRow(outcomesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			f.Close()
			return nil, err
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(outcomesSheet, "A1", "H1", style)
		_ = f.SetColWidth(outcomesSheet, "A", "A", 38)
		_ = f.SetColWidth(outcomesSheet, "E", "E", 38)
		_ = f.SetColWidth(outcomesSheet, "G", "H", 60)
	}
	return f, nil
}
