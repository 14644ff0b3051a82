package core

// Summary holds the derived aggregates. None of these are stored; they are
// recomputed from the collections on every read.
type Summary struct {
	TotalIncome   Money `json:"totalIncome"`
	TotalExpenses Money `json:"totalExpenses"`
	Balance       Money `json:"balance"`
}

// SegmentSpend is the per-segment breakdown: how much of the allocation has
// been consumed by expenses referencing the segment.
type SegmentSpend struct {
	Segment   Segment `json:"segment"`
	Spent     Money   `json:"spent"`
	Remaining Money   `json:"remaining"`
}

// Summarize computes totals and the remaining balance.
func Summarize(d AppData) Summary {
	var income, expenses int64
	for _, v := range d.Incomes {
		income += v.Amount.Cents
	}
	for _, v := range d.Expenses {
		expenses += v.Amount.Cents
	}
	return Summary{
		TotalIncome:   Money{Cents: income},
		TotalExpenses: Money{Cents: expenses},
		Balance:       Money{Cents: income - expenses},
	}
}

// SegmentBreakdown computes per-segment spend in segment insertion order.
// Remaining may go negative when a segment is overspent.
func SegmentBreakdown(d AppData) []SegmentSpend {
	spent := make(map[string]int64, len(d.Segments))
	for _, e := range d.Expenses {
		spent[e.SegmentID] += e.Amount.Cents
	}
	out := make([]SegmentSpend, 0, len(d.Segments))
	for _, s := range d.Segments {
		out = append(out, SegmentSpend{
			Segment:   s,
			Spent:     Money{Cents: spent[s.ID]},
			Remaining: Money{Cents: s.Allocated.Cents - spent[s.ID]},
		})
	}
	return out
}

// AllocationExceedsIncome reports the soft budget check: whether the sum of
// all segment allocations is greater than total income. Surfaced as a
// warning at input time, never stored or enforced.
func AllocationExceedsIncome(d AppData) bool {
	var allocated int64
	for _, s := range d.Segments {
		allocated += s.Allocated.Cents
	}
	return allocated > Summarize(d).TotalIncome.Cents
}
