// Package handler provides the local JSON API and MCP tools for the stock
// counting front end.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"gizmo-stock/internal/inventory"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/session"
	"gizmo-stock/internal/store"
)

// Inventory is the service the handlers drive.
type Inventory interface {
	Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error)
	RefreshProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, error)
	Groups(ctx context.Context) ([]model.ProductGroup, error)
	ProductImage(ctx context.Context, id string) (string, error)
	Stock(ctx context.Context, id string) (int, error)

	SetEdit(id string, edit model.PendingEdit, withdraw ...model.EditField) (model.PendingEdit, error)
	ClearEdit(id string)
	PendingEdits() map[string]model.PendingEdit
	ApplyAll(ctx context.Context, progress func(inventory.Progress)) inventory.Summary
	ApplyOne(ctx context.Context, id string) (inventory.Summary, error)

	StartSession(ctx context.Context) (session.Session, error)
	EndSession(ctx context.Context) (session.Session, error)
	ClearSession(ctx context.Context)
	Session() (session.Session, bool)
	CountedIDs() []string
}

// AuditLog reads the price and cost audit trail.
type AuditLog interface {
	Audit(ctx context.Context, productID string, limit int) ([]store.AuditEntry, error)
}

var _ Inventory = (*inventory.Service)(nil)

// Config holds dependencies for HTTP handlers. Inventory is required.
type Config struct {
	Inventory Inventory
	Audit     AuditLog     // optional; enables GET /audit/{id}
	Metrics   http.Handler // optional; mounted at GET /metrics
	Location  *time.Location
	Logger    *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	inv      Inventory
	audit    AuditLog
	metrics  http.Handler
	location *time.Location
	logger   *slog.Logger
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	h := &Handler{
		inv:      cfg.Inventory,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		location: cfg.Location,
		logger:   cfg.Logger,
	}
	if h.location == nil {
		h.location = time.Local
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	return h
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Catalog
	mux.HandleFunc("GET /products", h.handleProducts)
	mux.HandleFunc("GET /products/{id}/image", h.handleProductImage)
	mux.HandleFunc("GET /groups", h.handleGroups)
	mux.HandleFunc("GET /stock/{id}", h.handleStock)

	// Pending edits and apply
	mux.HandleFunc("GET /edits", h.handleListEdits)
	mux.HandleFunc("PUT /edits/{id}", h.handleSetEdit)
	mux.HandleFunc("DELETE /edits/{id}", h.handleClearEdit)
	mux.HandleFunc("POST /edits/{id}/apply", h.handleApplyOne)
	mux.HandleFunc("POST /apply", h.handleApplyAll)

	// Counting session
	mux.HandleFunc("POST /session", h.handleStartSession)
	mux.HandleFunc("POST /session/end", h.handleEndSession)
	mux.HandleFunc("DELETE /session", h.handleClearSession)
	mux.HandleFunc("GET /session", h.handleGetSession)
	mux.HandleFunc("GET /session/export", h.handleExportSession)
	mux.HandleFunc("GET /counted", h.handleCounted)

	if h.audit != nil {
		mux.HandleFunc("GET /audit/{id}", h.handleAudit)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.inv.Session()
	status := sess.Status
	if status == "" {
		status = session.StatusNone
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Session: status})
}

type healthResponse struct {
	Status  string         `json:"status"`
	Session session.Status `json:"session"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response. POS and state errors are mapped onto
// APIError; anything unclassified is logged and reported as a 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := model.ToAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
