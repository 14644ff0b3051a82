// Package export handles the JSON backup format and the XLSX report.
package export

import (
	"encoding/json"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// ErrInvalidBackup marks a backup file that does not carry the three
// expected top-level arrays.
var ErrInvalidBackup = errors.New("invalid backup file")

// backupDocument is the exchange format: a JSON object with exactly the
// three collections as top-level arrays.
type backupDocument struct {
	Incomes  []core.Income  `json:"incomes"`
	Expenses []core.Expense `json:"expenses"`
	Segments []core.Segment `json:"segments"`
}

// MarshalBackup serializes the dataset for download. Empty collections are
// written as empty arrays, never null, so a round trip stays valid.
func MarshalBackup(data core.AppData) ([]byte, error) {
	doc := backupDocument{
		Incomes:  data.Incomes,
		Expenses: data.Expenses,
		Segments: data.Segments,
	}
	if doc.Incomes == nil {
		doc.Incomes = []core.Income{}
	}
	if doc.Expenses == nil {
		doc.Expenses = []core.Expense{}
	}
	if doc.Segments == nil {
		doc.Segments = []core.Segment{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalBackup parses and validates a backup file. The file must be a
// JSON object whose incomes, expenses and segments keys are all present and
// all arrays; anything else returns ErrInvalidBackup.
func UnmarshalBackup(raw []byte) (core.AppData, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return core.AppData{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	var doc backupDocument
	for key, dst := range map[string]any{
		"incomes":  &doc.Incomes,
		"expenses": &doc.Expenses,
		"segments": &doc.Segments,
	} {
		section, ok := top[key]
		if !ok {
			return core.AppData{}, fmt.Errorf("%w: missing %q array", ErrInvalidBackup, key)
		}
		if !isJSONArray(section) {
			return core.AppData{}, fmt.Errorf("%w: %q is not an array", ErrInvalidBackup, key)
		}
		if err := json.Unmarshal(section, dst); err != nil {
			return core.AppData{}, fmt.Errorf("%w: %q is not a valid array: %v", ErrInvalidBackup, key, err)
		}
	}

	return core.AppData{
		Incomes:  doc.Incomes,
		Expenses: doc.Expenses,
		Segments: doc.Segments,
	}, nil
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
