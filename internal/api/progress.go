package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/app/export"
	"github.com/mindcamp/mindcamp/internal/domain"
)

// ─── Progress ───────────────────────────────────────────────────────────────

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetProgress(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": engagement.RankTableVersion,
		"ranks":   engagement.Ranks(),
	})
}

// ─── Grace ──────────────────────────────────────────────────────────────────

type spendGraceRequest struct {
	Date *domain.Day `json:"date,omitempty"`
}

type spendGraceResponse struct {
	Success  bool            `json:"success"`
	Noop     bool            `json:"noop,omitempty"`
	Progress domain.Snapshot `json:"progress"`
}

// handleSpendGrace spends a token on the given date (yesterday by default).
// Repeating a spend for an already graced day succeeds as a no-op.
func (s *Server) handleSpendGrace(w http.ResponseWriter, r *http.Request) {
	var req spendGraceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Date != nil && req.Date.IsZero() {
		req.Date = nil
	}
	userID := IdentityFrom(r.Context()).UserID

	snap, err := s.svc.SpendGrace(r.Context(), userID, req.Date)
	if domain.IsIdempotentConflict(err) {
		current, serr := s.svc.Snapshot(r.Context(), userID)
		if serr != nil {
			s.writeDomainError(w, r, serr)
			return
		}
		writeJSON(w, http.StatusOK, spendGraceResponse{Success: true, Noop: true, Progress: current})
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spendGraceResponse{Success: true, Progress: snap})
}

// ─── Entries ────────────────────────────────────────────────────────────────

type entryRequest struct {
	Date      domain.Day `json:"date"`
	WordCount int        `json:"word_count"`
}

type syncRequest struct {
	Entries []entryRequest `json:"entries"`
}

// handleRecordEntry ingests one entry. A missing date means today.
func (s *Server) handleRecordEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	day := req.Date
	if day.IsZero() {
		day = domain.DayOf(s.svc.Now(r.Context()))
	}
	res, err := s.svc.RecordQualifyingEntry(r.Context(), IdentityFrom(r.Context()).UserID, day, req.WordCount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSyncEntries ingests a batch from an offline client. The batch is
// rejected as a whole when any entry is invalid.
func (s *Server) handleSyncEntries(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Entries) == 0 {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "entries is required")
		return
	}
	in := make([]engagement.EntryInput, len(req.Entries))
	for i, e := range req.Entries {
		in[i] = engagement.EntryInput{Day: e.Date, WordCount: e.WordCount}
	}
	res, err := s.svc.SyncEntries(r.Context(), IdentityFrom(r.Context()).UserID, in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"synced": len(in),
		"result": res,
	})
}

// ─── Export ─────────────────────────────────────────────────────────────────

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := IdentityFrom(r.Context()).UserID
	view, err := s.svc.GetProgress(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	now := s.svc.Now(r.Context())

	// Buffer so an encoding failure can still produce a clean error response.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, export.Build(view, now)); err != nil {
		s.writeDomainError(w, r, fmt.Errorf("export: %w", err))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(userID, now)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
