package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"gizmo-stock/internal/model"
	"gizmo-stock/internal/report"
	"gizmo-stock/internal/session"
	"gizmo-stock/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleStartSession opens a counting session. A session that already
// exists, active or completed, is a 409.
// POST /session
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.inv.StartSession(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "counting session started", slog.String("session_id", sess.ID))
	h.writeJSON(w, http.StatusCreated, sess)
}

// handleEndSession completes the active session.
// POST /session/end
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.inv.EndSession(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "counting session ended",
		slog.String("session_id", sess.ID),
		slog.Int("changes", sess.TotalChanges))
	h.writeJSON(w, http.StatusOK, sess)
}

// handleClearSession discards the session and its counted set.
// DELETE /session
func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	h.inv.ClearSession(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSession returns the session, or {"status":"none"}.
// GET /session
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.inv.Session()
	if !ok {
		h.writeJSON(w, http.StatusOK, noSessionResponse{Status: session.StatusNone})
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

type noSessionResponse struct {
	Status session.Status `json:"status"`
}

// handleExportSession downloads the session as an XLSX workbook.
// GET /session/export
func (h *Handler) handleExportSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.inv.Session()
	if !ok {
		h.writeError(w, model.NewNotFoundError("counting session"))
		return
	}

	// Render fully before writing so a failure can still be a JSON error.
	var buf bytes.Buffer
	if err := report.Write(&buf, sess, h.location); err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(sess)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("writing session export", slog.String("error", err.Error()))
	}
}

// handleCounted lists the products counted in the current session.
// GET /counted
func (h *Handler) handleCounted(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, countedResponse{ProductIDs: h.inv.CountedIDs()})
}

type countedResponse struct {
	ProductIDs []string `json:"productIds"`
}

// handleAudit lists recent price and cost changes for a product, newest
// first. ?limit defaults to 50.
// GET /audit/{id}
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, model.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.audit.Audit(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	h.writeJSON(w, http.StatusOK, auditResponse{Entries: entries})
}

type auditResponse struct {
	Entries []store.AuditEntry `json:"entries"`
}
