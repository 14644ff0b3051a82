package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// Amounts come over the wire as decimal numbers like 500.00; json.Number
// keeps the two-decimal rendering intact.
type summaryReport struct {
	TotalIncome   json.Number `json:"totalIncome"`
	TotalExpenses json.Number `json:"totalExpenses"`
	Balance       json.Number `json:"balance"`
	Segments      []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
		Spent     json.Number `json:"spent"`
		Remaining json.Number `json:"remaining"`
	} `json:"segments"`
	OverAllocated bool `json:"overAllocated"`
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show totals and the per-segment breakdown",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	body, err := apiRequest(http.MethodGet, "/api/summary", nil)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(body)
	}

	var report summaryReport
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}

	fmt.Printf("Income:   %s\n", report.TotalIncome)
	fmt.Printf("Expenses: %s\n", report.TotalExpenses)
	fmt.Printf("Balance:  %s\n", report.Balance)
	if report.OverAllocated {
		fmt.Println("Warning: segment allocations exceed total income")
	}
	if len(report.Segments) > 0 {
		fmt.Println("\nSegments:")
		for _, s := range report.Segments {
			fmt.Printf("  %-20s spent %10s  remaining %10s\n", s.Segment.Name, s.Spent, s.Remaining)
		}
	}
	return nil
}
