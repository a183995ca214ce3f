// Package adapter defines the POS operations the inventory service depends
// on. The Gizmo client is the production implementation.
package adapter

import (
	"context"

	"gizmo-stock/internal/model"
)

// POS abstracts the point-of-sale backend.
//
// Every write is a single-field update of one product. Implementations that
// only support full-record replacement must read the current record first and
// carry every untouched field through unchanged.
type POS interface {
	// ListProducts returns the products matching q.
	ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error)

	// ListGroups returns the non-deleted product groups.
	ListGroups(ctx context.Context) ([]model.ProductGroup, error)

	// GetProductImage returns a displayable image URL, or "" if the product
	// has none.
	GetProductImage(ctx context.Context, id string) (string, error)

	// GetStock returns the live stock count.
	GetStock(ctx context.Context, id string) (int, error)

	// UpdateStock sets the absolute stock count.
	UpdateStock(ctx context.Context, id string, count int) error

	UpdatePrice(ctx context.Context, id string, price float64) error
	UpdateCost(ctx context.Context, id string, cost float64) error
	UpdateBarcode(ctx context.Context, id, barcode string) error
	UpdateName(ctx context.Context, id, name string) error
}
