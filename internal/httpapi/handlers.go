package httpapi

import (
	"net/http"
	"time"

	"bilancio/internal/core"
)

// Amounts travel as decimal strings ("12.34" or "12,34"), dates as
// "2006-01-02", expense timestamps as RFC 3339.
type incomeRequest struct {
	Title  string `json:"title"`
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

type expenseRequest struct {
	Title     string `json:"title"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp,omitempty"`
	SegmentID string `json:"segmentId"`
}

type segmentRequest struct {
	Name      string `json:"name"`
	Allocated string `json:"allocated"`
	Color     string `json:"color,omitempty"`
}

func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, core.ErrInvalidDate
	}
	return core.Date{Time: t}, nil
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.tracker.Snapshot().Incomes)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	income, err := s.tracker.AddIncome(r.Context(), req.Title, amount, date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	writeJSON(w, r, http.StatusCreated, income)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	income := core.Income{
		ID:     r.PathValue("id"),
		Title:  req.Title,
		Amount: amount,
		Date:   date,
	}
	if err := s.tracker.UpdateIncome(r.Context(), income); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	writeJSON(w, r, http.StatusOK, income)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteIncome(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.tracker.Snapshot().Expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	timestamp := time.Now()
	if req.Timestamp != "" {
		timestamp, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid timestamp: want RFC 3339")
			return
		}
	}

	expense, err := s.tracker.AddExpense(r.Context(), req.Title, amount, timestamp, req.SegmentID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	writeJSON(w, r, http.StatusCreated, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	id := r.PathValue("id")

	// An omitted timestamp keeps the stored one, the same way an omitted
	// segment color keeps the stored color.
	var timestamp time.Time
	if req.Timestamp != "" {
		timestamp, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid timestamp: want RFC 3339")
			return
		}
	} else if existing, ok := s.tracker.Snapshot().ExpenseByID(id); ok {
		timestamp = existing.Timestamp
	} else {
		timestamp = time.Now()
	}

	expense := core.Expense{
		ID:        id,
		Title:     req.Title,
		Amount:    amount,
		Timestamp: timestamp,
		SegmentID: req.SegmentID,
	}
	if err := s.tracker.UpdateExpense(r.Context(), expense); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	writeJSON(w, r, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.tracker.Snapshot().Segments)
}

func (s *Server) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	allocated, err := parseAmount(req.Allocated)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	segment, err := s.tracker.AddSegment(r.Context(), req.Name, allocated, req.Color)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	writeJSON(w, r, http.StatusCreated, segment)
}

func (s *Server) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	allocated, err := parseAmount(req.Allocated)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	segment := core.Segment{
		ID:        r.PathValue("id"),
		Name:      req.Name,
		Allocated: allocated,
		Color:     req.Color,
	}
	if err := s.tracker.UpdateSegment(r.Context(), segment); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	writeJSON(w, r, http.StatusOK, segment)
}

func (s *Server) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteSegment(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	w.WriteHeader(http.StatusNoContent)
}
