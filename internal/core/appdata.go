package core

// AppData is the aggregate of all three collections: the unit of local
// persistence, remote persistence and full-backup export/import.
type AppData struct {
	Incomes  []Income  `json:"incomes"`
	Expenses []Expense `json:"expenses"`
	Segments []Segment `json:"segments"`
}

// Clone returns a deep copy. Entities contain no reference fields, so
// copying the slices is enough.
func (d AppData) Clone() AppData {
	out := AppData{
		Incomes:  make([]Income, len(d.Incomes)),
		Expenses: make([]Expense, len(d.Expenses)),
		Segments: make([]Segment, len(d.Segments)),
	}
	copy(out.Incomes, d.Incomes)
	copy(out.Expenses, d.Expenses)
	copy(out.Segments, d.Segments)
	return out
}

// AssignDefaultColors fills in palette colors for segments that have none,
// keyed by their position in the collection.
func (d *AppData) AssignDefaultColors() {
	for i := range d.Segments {
		if d.Segments[i].Color == "" {
			d.Segments[i].Color = DefaultColor(i)
		}
	}
}

// SegmentByID returns the segment with the given id, if present.
func (d AppData) SegmentByID(id string) (Segment, bool) {
	for _, s := range d.Segments {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}

// ExpenseByID returns the expense with the given id, if present.
func (d AppData) ExpenseByID(id string) (Expense, bool) {
	for _, e := range d.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}

// SegmentInUse reports whether any expense references the segment.
func (d AppData) SegmentInUse(id string) bool {
	for _, e := range d.Expenses {
		if e.SegmentID == id {
			return true
		}
	}
	return false
}

// Apply merges a single sync action into the aggregate, in place.
//
// Semantics are those of queue replay: add appends, update replaces the
// record with the same id or appends when absent (the remote may have been
// reset, or the record may never have reached it), delete removes the record
// if present and is a no-op otherwise. It reports whether an update had to
// fall back to an append so callers can log that case distinctly.
func (d *AppData) Apply(a SyncAction) (updateBecameAdd bool) {
	switch a.Entity {
	case EntityIncome:
		switch a.Kind {
		case ActionAdd:
			d.Incomes = append(d.Incomes, *a.Income)
		case ActionUpdate:
			for i := range d.Incomes {
				if d.Incomes[i].ID == a.Income.ID {
					d.Incomes[i] = *a.Income
					return false
				}
			}
			d.Incomes = append(d.Incomes, *a.Income)
			return true
		case ActionDelete:
			d.Incomes = deleteByID(d.Incomes, a.TargetID, func(v Income) string { return v.ID })
		}
	case EntityExpense:
		switch a.Kind {
		case ActionAdd:
			d.Expenses = append(d.Expenses, *a.Expense)
		case ActionUpdate:
			for i := range d.Expenses {
				if d.Expenses[i].ID == a.Expense.ID {
					d.Expenses[i] = *a.Expense
					return false
				}
			}
			d.Expenses = append(d.Expenses, *a.Expense)
			return true
		case ActionDelete:
			d.Expenses = deleteByID(d.Expenses, a.TargetID, func(v Expense) string { return v.ID })
		}
	case EntitySegment:
		switch a.Kind {
		case ActionAdd:
			d.Segments = append(d.Segments, *a.Segment)
		case ActionUpdate:
			for i := range d.Segments {
				if d.Segments[i].ID == a.Segment.ID {
					d.Segments[i] = *a.Segment
					return false
				}
			}
			d.Segments = append(d.Segments, *a.Segment)
			return true
		case ActionDelete:
			d.Segments = deleteByID(d.Segments, a.TargetID, func(v Segment) string { return v.ID })
		}
	}
	return false
}

func deleteByID[T any](in []T, id string, key func(T) string) []T {
	for i := range in {
		if key(in[i]) == id {
			return append(in[:i], in[i+1:]...)
		}
	}
	return in
}
