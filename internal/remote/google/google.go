// Package google backs the remote store port with a Google Sheets
// spreadsheet: one tab per collection. It exists to prove the sync engine's
// contract does not depend on the simulated remote; service-account
// credentials are read from the environment.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/remote"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	incomesSheet  string
	expensesSheet string
	segmentsSheet string
}

var _ remote.Store = (*Client)(nil)

// NewFromEnv creates a Sheets-backed remote store using environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service account credentials
// (GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS). Optional tab names:
// GOOGLE_INCOMES_SHEET_NAME, GOOGLE_EXPENSES_SHEET_NAME,
// GOOGLE_SEGMENTS_SHEET_NAME.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		incomesSheet:  sheetNameFromEnv("GOOGLE_INCOMES_SHEET_NAME", "Incomes"),
		expensesSheet: sheetNameFromEnv("GOOGLE_EXPENSES_SHEET_NAME", "Expenses"),
		segmentsSheet: sheetNameFromEnv("GOOGLE_SEGMENTS_SHEET_NAME", "Segments"),
	}, nil
}

func sheetNameFromEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Fetch reads the three tabs for the scope's spreadsheet. An entirely empty
// spreadsheet reports found=false so a fresh scope starts from nothing.
func (c *Client) Fetch(ctx context.Context, scope string) (core.AppData, bool, error) {
	var data core.AppData

	incomeRows, err := c.readRows(ctx, c.incomesSheet)
	if err != nil {
		return core.AppData{}, false, fmt.Errorf("fetch incomes: %w", err)
	}
	expenseRows, err := c.readRows(ctx, c.expensesSheet)
	if err != nil {
		return core.AppData{}, false, fmt.Errorf("fetch expenses: %w", err)
	}
	segmentRows, err := c.readRows(ctx, c.segmentsSheet)
	if err != nil {
		return core.AppData{}, false, fmt.Errorf("fetch segments: %w", err)
	}

	for i, row := range incomeRows {
		v, err := parseIncomeRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed income row",
				"sheet", c.incomesSheet, "row", i+2, "error", err)
			continue
		}
		data.Incomes = append(data.Incomes, v)
	}
	for i, row := range expenseRows {
		v, err := parseExpenseRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed expense row",
				"sheet", c.expensesSheet, "row", i+2, "error", err)
			continue
		}
		data.Expenses = append(data.Expenses, v)
	}
	for i, row := range segmentRows {
		v, err := parseSegmentRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed segment row",
				"sheet", c.segmentsSheet, "row", i+2, "error", err)
			continue
		}
		data.Segments = append(data.Segments, v)
	}

	found := len(data.Incomes)+len(data.Expenses)+len(data.Segments) > 0
	slog.DebugContext(ctx, "Fetched remote snapshot from Google Sheets",
		"scope", scope,
		"incomes", len(data.Incomes),
		"expenses", len(data.Expenses),
		"segments", len(data.Segments))
	return data, found, nil
}

// Save replaces the three tabs with the given snapshot.
func (c *Client) Save(ctx context.Context, scope string, data core.AppData) error {
	if err := c.writeRows(ctx, c.incomesSheet, incomeHeader, incomeValues(data.Incomes)); err != nil {
		return fmt.Errorf("save incomes: %w", err)
	}
	if err := c.writeRows(ctx, c.expensesSheet, expenseHeader, expenseValues(data.Expenses)); err != nil {
		return fmt.Errorf("save expenses: %w", err)
	}
	if err := c.writeRows(ctx, c.segmentsSheet, segmentHeader, segmentValues(data.Segments)); err != nil {
		return fmt.Errorf("save segments: %w", err)
	}

	slog.InfoContext(ctx, "Remote snapshot saved to Google Sheets",
		"scope", scope,
		"spreadsheet_id", c.spreadsheetID,
		"incomes", len(data.Incomes),
		"expenses", len(data.Expenses),
		"segments", len(data.Segments))
	return nil
}

// readRows returns all data rows of a tab, header excluded.
func (c *Client) readRows(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, sheet+"!A2:E").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", sheet, err)
	}
	return resp.Values, nil
}

// writeRows clears a tab and rewrites header plus rows in one update.
func (c *Client) writeRows(ctx context.Context, sheet string, header []interface{}, rows [][]interface{}) error {
	_, err := c.svc.Spreadsheets.Values.
		Clear(c.spreadsheetID, sheet+"!A:E", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear range %s: %w", sheet, err)
	}

	values := append([][]interface{}{header}, rows...)
	_, err = c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, sheet+"!A1", &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update range %s: %w", sheet, err)
	}
	return nil
}

var (
	incomeHeader  = []interface{}{"id", "title", "amount", "date"}
	expenseHeader = []interface{}{"id", "title", "amount", "timestamp", "segment_id"}
	segmentHeader = []interface{}{"id", "name", "allocated", "color"}
)

func incomeValues(in []core.Income) [][]interface{} {
	out := make([][]interface{}, 0, len(in))
	for _, v := range in {
		out = append(out, []interface{}{
			v.ID, v.Title, v.Amount.String(), v.Date.Format("2006-01-02"),
		})
	}
	return out
}

func expenseValues(in []core.Expense) [][]interface{} {
	out := make([][]interface{}, 0, len(in))
	for _, v := range in {
		out = append(out, []interface{}{
			v.ID, v.Title, v.Amount.String(), v.Timestamp.UTC().Format(time.RFC3339), v.SegmentID,
		})
	}
	return out
}

func segmentValues(in []core.Segment) [][]interface{} {
	out := make([][]interface{}, 0, len(in))
	for _, v := range in {
		out = append(out, []interface{}{
			v.ID, v.Name, v.Allocated.String(), v.Color,
		})
	}
	return out
}
