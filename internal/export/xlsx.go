package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bilancio/internal/core"
)

const (
	sheetSummary  = "Summary"
	sheetIncomes  = "Incomes"
	sheetExpenses = "Expenses"
	sheetSegments = "Segments"
)

// WriteXLSX renders the dataset as a spreadsheet report with one sheet per
// collection plus a summary sheet.
func WriteXLSX(w io.Writer, data core.AppData) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, data); err != nil {
		return err
	}
	if err := writeIncomesSheet(f, data.Incomes); err != nil {
		return err
	}
	if err := writeExpensesSheet(f, data); err != nil {
		return err
	}
	if err := writeSegmentsSheet(f, data); err != nil {
		return err
	}

	// The workbook starts with a default sheet we do not use.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheetSummary)
	if err != nil {
		return fmt.Errorf("find summary sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, data core.AppData) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	summary := core.Summarize(data)
	rows := [][]any{
		{"Total income", summary.TotalIncome.String()},
		{"Total expenses", summary.TotalExpenses.String()},
		{"Balance", summary.Balance.String()},
		{},
		{"Segment", "Allocated", "Spent", "Remaining"},
	}
	for _, s := range core.SegmentBreakdown(data) {
		rows = append(rows, []any{s.Segment.Name, s.Segment.Allocated.String(), s.Spent.String(), s.Remaining.String()})
	}
	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheetSummary, "A", "D", 18)
}

func writeIncomesSheet(f *excelize.File, incomes []core.Income) error {
	if _, err := f.NewSheet(sheetIncomes); err != nil {
		return fmt.Errorf("create incomes sheet: %w", err)
	}

	rows := [][]any{{"ID", "Title", "Amount", "Date"}}
	for _, in := range incomes {
		rows = append(rows, []any{in.ID, in.Title, in.Amount.String(), in.Date.Format("2006-01-02")})
	}
	if err := writeRows(f, sheetIncomes, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheetIncomes, "A", "D", 20)
}

func writeExpensesSheet(f *excelize.File, data core.AppData) error {
	if _, err := f.NewSheet(sheetExpenses); err != nil {
		return fmt.Errorf("create expenses sheet: %w", err)
	}

	rows := [][]any{{"ID", "Title", "Amount", "Timestamp", "Segment"}}
	for _, e := range data.Expenses {
		segmentName := e.SegmentID
		if seg, ok := data.SegmentByID(e.SegmentID); ok {
			segmentName = seg.Name
		}
		rows = append(rows, []any{e.ID, e.Title, e.Amount.String(), e.Timestamp.Format("2006-01-02 15:04:05"), segmentName})
	}
	if err := writeRows(f, sheetExpenses, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheetExpenses, "A", "E", 20)
}

func writeSegmentsSheet(f *excelize.File, data core.AppData) error {
	if _, err := f.NewSheet(sheetSegments); err != nil {
		return fmt.Errorf("create segments sheet: %w", err)
	}

	rows := [][]any{{"ID", "Name", "Allocated", "Color"}}
	for _, s := range data.Segments {
		rows = append(rows, []any{s.ID, s.Name, s.Allocated.String(), s.Color})
	}
	if err := writeRows(f, sheetSegments, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheetSegments, "A", "D", 20)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
