package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/export"
)

type summaryResponse struct {
	core.Summary
	Segments      []core.SegmentSpend `json:"segments"`
	OverAllocated bool                `json:"overAllocated"`
}

type statusResponse struct {
	Scope          string `json:"scope"`
	Online         bool   `json:"online"`
	Syncing        bool   `json:"syncing"`
	Loading        bool   `json:"loading"`
	PendingActions int    `json:"pendingActions"`
}

type onlineRequest struct {
	Online bool `json:"online"`
}

const maxImportBytes = 8 << 20

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	scope := s.tracker.Scope()
	if cached, ok := s.summaryCache.Get(scope); ok {
		writeJSON(w, r, http.StatusOK, cached)
		return
	}

	data := s.tracker.Snapshot()
	resp := summaryResponse{
		Summary:       core.Summarize(data),
		Segments:      core.SegmentBreakdown(data),
		OverAllocated: core.AllocationExceedsIncome(data),
	}
	s.summaryCache.Set(scope, resp)
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.tracker.PendingCount(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, statusResponse{
		Scope:          s.tracker.Scope(),
		Online:         s.tracker.IsOnline(),
		Syncing:        s.tracker.IsSyncing(),
		Loading:        s.tracker.IsLoading(),
		PendingActions: pending,
	})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.TriggerSync(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	s.handleStatus(w, r)
}

// handleSetOnline flips the connectivity flag, mainly for development against
// the simulated remote.
func (s *Server) handleSetOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.tracker.SetOnline(req.Online)
	s.handleStatus(w, r)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	raw, err := export.MarshalBackup(s.tracker.Snapshot())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "bilancio_"+time.Now().Format("20060102")+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	data, err := export.UnmarshalBackup(raw)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.tracker.ReplaceAll(r.Context(), data); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateDerived()
	s.handleStatus(w, r)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "bilancio_"+time.Now().Format("20060102")+".xlsx"))
	if err := export.WriteXLSX(w, s.tracker.Snapshot()); err != nil {
		// Headers are gone already; the truncated body is the best signal left.
		writeDomainError(w, r, err)
	}
}
