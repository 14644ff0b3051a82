package google

import (
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
)

var errShortRow = errors.New("row has too few cells")

func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func parseIncomeRow(row []interface{}) (core.Income, error) {
	if len(row) < 4 {
		return core.Income{}, errShortRow
	}
	cents, err := core.ParseDecimalToCents(cell(row, 2))
	if err != nil {
		return core.Income{}, fmt.Errorf("amount: %w", err)
	}
	date, err := time.Parse("2006-01-02", cell(row, 3))
	if err != nil {
		return core.Income{}, fmt.Errorf("date: %w", err)
	}
	return core.Income{
		ID:     cell(row, 0),
		Title:  cell(row, 1),
		Amount: core.Money{Cents: cents},
		Date:   core.NewDate(date.Year(), int(date.Month()), date.Day()),
	}, nil
}

func parseExpenseRow(row []interface{}) (core.Expense, error) {
	if len(row) < 5 {
		return core.Expense{}, errShortRow
	}
	cents, err := core.ParseDecimalToCents(cell(row, 2))
	if err != nil {
		return core.Expense{}, fmt.Errorf("amount: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, cell(row, 3))
	if err != nil {
		return core.Expense{}, fmt.Errorf("timestamp: %w", err)
	}
	return core.Expense{
		ID:        cell(row, 0),
		Title:     cell(row, 1),
		Amount:    core.Money{Cents: cents},
		Timestamp: ts.UTC(),
		SegmentID: cell(row, 4),
	}, nil
}

func parseSegmentRow(row []interface{}) (core.Segment, error) {
	if len(row) < 3 {
		return core.Segment{}, errShortRow
	}
	cents, err := core.ParseDecimalToCents(cell(row, 2))
	if err != nil {
		return core.Segment{}, fmt.Errorf("allocated: %w", err)
	}
	return core.Segment{
		ID:        cell(row, 0),
		Name:      cell(row, 1),
		Allocated: core.Money{Cents: cents},
		Color:     cell(row, 3),
	}, nil
}
