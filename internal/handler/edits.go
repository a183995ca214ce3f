package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"gizmo-stock/internal/extract"
	"gizmo-stock/internal/inventory"
	"gizmo-stock/internal/model"
)

// EditView is a pending edit as shown to clients. Absent fields are null.
type EditView struct {
	ProductID      string   `json:"productId"`
	CountedValue   *int     `json:"countedValue"`
	AddedValue     *int     `json:"addedValue"`
	WasteValue     *int     `json:"wasteValue"`
	PendingPrice   *float64 `json:"pendingPrice"`
	PendingCost    *float64 `json:"pendingCost"`
	PendingBarcode *string  `json:"pendingBarcode"`
	PendingName    *string  `json:"pendingName"`
}

func editView(id string, e model.PendingEdit) EditView {
	return EditView{
		ProductID:      id,
		CountedValue:   e.Counted.Ptr(),
		AddedValue:     e.Added.Ptr(),
		WasteValue:     e.Waste.Ptr(),
		PendingPrice:   e.Price.Ptr(),
		PendingCost:    e.Cost.Ptr(),
		PendingBarcode: e.Barcode.Ptr(),
		PendingName:    e.Name.Ptr(),
	}
}

func (h *Handler) editViews() []EditView {
	edits := h.inv.PendingEdits()
	views := make([]EditView, 0, len(edits))
	for id, e := range edits {
		views = append(views, editView(id, e))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ProductID < views[j].ProductID })
	return views
}

// handleListEdits lists every pending edit.
// GET /edits
func (h *Handler) handleListEdits(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, editsResponse{Edits: h.editViews()})
}

type editsResponse struct {
	Edits []EditView `json:"edits"`
}

// handleSetEdit merges user input into a product's pending edit. Blank
// values withdraw that field; malformed values are dropped rather than
// rejected.
// PUT /edits/{id}
func (h *Handler) handleSetEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var in extract.EditInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}

	merged, err := h.inv.SetEdit(id, extract.Edit(in), extract.Cleared(in)...)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.DebugContext(ctx, "edit captured", slog.String("product_id", id))
	h.writeJSON(w, http.StatusOK, editView(id, merged))
}

// handleClearEdit drops a product's pending edit.
// DELETE /edits/{id}
func (h *Handler) handleClearEdit(w http.ResponseWriter, r *http.Request) {
	h.inv.ClearEdit(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleApplyOne pushes a single product's pending edit to the POS.
// POST /edits/{id}/apply
func (h *Handler) handleApplyOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	summary, err := h.inv.ApplyOne(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "applied edit",
		slog.String("product_id", id),
		slog.Int("failed", summary.Failed))
	h.writeJSON(w, applyStatus(summary), summary)
}

// handleApplyAll pushes every pending edit to the POS.
// POST /apply
func (h *Handler) handleApplyAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary := h.inv.ApplyAll(ctx, nil)

	h.logger.InfoContext(ctx, "applied pending edits",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("unchanged", summary.Unchanged))
	h.writeJSON(w, applyStatus(summary), summary)
}

// applyStatus is 200 unless every attempted update failed, which is
// reported as 502 so scripted callers notice.
func applyStatus(s inventory.Summary) int {
	if s.AllFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
