package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type (
	// Date is a calendar date with no time component, pinned to UTC midnight.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Income struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Amount Money  `json:"amount"`
		Date   Date   `json:"date"`
	}

	Expense struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Amount    Money     `json:"amount"`
		Timestamp time.Time `json:"timestamp"` // absolute instant, stored in UTC
		SegmentID string    `json:"segmentId"`
	}

	Segment struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Allocated Money  `json:"allocated"`
		Color     string `json:"color,omitempty"`
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyTitle     = errors.New("empty title")
	ErrEmptyName      = errors.New("empty name")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidColor   = errors.New("invalid color")
	ErrEmptySegmentID = errors.New("empty segment reference")
	ErrUnknownSegment = errors.New("segment does not exist")
	ErrNoSegments     = errors.New("no segments defined")
	ErrSegmentInUse   = errors.New("segment is referenced by expenses")
	ErrNotFound       = errors.New("record not found")
)

// DefaultPalette holds the colors assigned to segments created without one,
// keyed by position in the segments collection.
var DefaultPalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

// DefaultColor returns the palette color for the segment at position i.
func DefaultColor(i int) string {
	if i < 0 {
		i = 0
	}
	return DefaultPalette[i%len(DefaultPalette)]
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// MarshalJSON renders the date as "2006-01-02".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// UnmarshalJSON accepts "2006-01-02" and, for tolerance with older backups,
// full RFC 3339 timestamps whose time part is discarded.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ErrInvalidDate
	}
	d.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (i Income) Validate() error {
	if len(strings.TrimSpace(i.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(i.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	return i.Date.Validate()
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(e.SegmentID) == "" {
		return ErrEmptySegmentID
	}
	return nil
}

func (s Segment) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if len(s.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if err := s.Allocated.Validate(); err != nil {
		return err
	}
	if s.Color != "" && !colorPattern.MatchString(s.Color) {
		return ErrInvalidColor
	}
	return nil
}
