package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"gizmo-stock/internal/model"
)

// productQuery reads listing filters from the query string:
// ?group=<id> (repeatable), ?deleted=true, ?limit=<n>.
func productQuery(r *http.Request) (model.ProductQuery, error) {
	q := r.URL.Query()
	pq := model.ProductQuery{GroupIDs: q["group"]}

	if raw := q.Get("deleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return pq, model.NewValidationError("deleted", "must be true or false")
		}
		pq.IncludeDeleted = v
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return pq, model.NewValidationError("limit", "must be a non-negative integer")
		}
		pq.Limit = n
	}
	return pq, nil
}

// handleProducts lists products. ?refresh=true bypasses the product cache.
// GET /products
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pq, err := productQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	list := h.inv.Products
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		list = h.inv.RefreshProducts
		h.logger.InfoContext(ctx, "refreshing product listing")
	}

	products, err := list(ctx, pq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, productsResponse{Products: products, Count: len(products)})
}

type productsResponse struct {
	Products []model.Product `json:"products"`
	Count    int             `json:"count"`
}

// handleGroups lists product groups.
// GET /groups
func (h *Handler) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.inv.Groups(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}

type groupsResponse struct {
	Groups []model.ProductGroup `json:"groups"`
}

// handleProductImage returns a product's image URL. A product without an
// image yields an empty url.
// GET /products/{id}/image
func (h *Handler) handleProductImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	u, err := h.inv.ProductImage(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, imageResponse{ProductID: id, URL: u})
}

type imageResponse struct {
	ProductID string `json:"productId"`
	URL       string `json:"url"`
}

// handleStock reads the live stock count from the POS.
// GET /stock/{id}
func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	n, err := h.inv.Stock(ctx, id)
	if err != nil {
		h.logger.WarnContext(ctx, "stock lookup failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stockResponse{ProductID: id, Stock: n})
}

type stockResponse struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
}
