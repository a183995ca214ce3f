package adapter

import (
	"context"
	"sync"

	"gizmo-stock/internal/model"
)

// Call is one write recorded by Mock.
type Call struct {
	Method string
	ID     string
	Value  any
}

// Mock implements POS for testing.
// Each method can be configured via function fields. Writes without a
// configured function succeed. Safe for concurrent use.
type Mock struct {
	ListProductsFunc    func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error)
	ListGroupsFunc      func(ctx context.Context) ([]model.ProductGroup, error)
	GetProductImageFunc func(ctx context.Context, id string) (string, error)
	GetStockFunc        func(ctx context.Context, id string) (int, error)
	UpdateStockFunc     func(ctx context.Context, id string, count int) error
	UpdatePriceFunc     func(ctx context.Context, id string, price float64) error
	UpdateCostFunc      func(ctx context.Context, id string, cost float64) error
	UpdateBarcodeFunc   func(ctx context.Context, id, barcode string) error
	UpdateNameFunc      func(ctx context.Context, id, name string) error

	mu    sync.Mutex
	calls []Call
}

var _ POS = (*Mock)(nil)

func (m *Mock) record(method, id string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, ID: id, Value: value})
}

// Calls returns the writes made so far, in call order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the writes made through one method.
func (m *Mock) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ListProducts calls the configured ListProductsFunc or returns an empty page.
func (m *Mock) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx, q)
	}
	return &model.ProductPage{}, nil
}

// ListGroups calls the configured ListGroupsFunc or returns no groups.
func (m *Mock) ListGroups(ctx context.Context) ([]model.ProductGroup, error) {
	if m.ListGroupsFunc != nil {
		return m.ListGroupsFunc(ctx)
	}
	return nil, nil
}

// GetProductImage calls the configured GetProductImageFunc or returns no image.
func (m *Mock) GetProductImage(ctx context.Context, id string) (string, error) {
	if m.GetProductImageFunc != nil {
		return m.GetProductImageFunc(ctx, id)
	}
	return "", nil
}

// GetStock calls the configured GetStockFunc or returns a not-found error.
func (m *Mock) GetStock(ctx context.Context, id string) (int, error) {
	if m.GetStockFunc != nil {
		return m.GetStockFunc(ctx, id)
	}
	return 0, model.NewNotFoundError("product")
}

func (m *Mock) UpdateStock(ctx context.Context, id string, count int) error {
	m.record("UpdateStock", id, count)
	if m.UpdateStockFunc != nil {
		return m.UpdateStockFunc(ctx, id, count)
	}
	return nil
}

func (m *Mock) UpdatePrice(ctx context.Context, id string, price float64) error {
	m.record("UpdatePrice", id, price)
	if m.UpdatePriceFunc != nil {
		return m.UpdatePriceFunc(ctx, id, price)
	}
	return nil
}

func (m *Mock) UpdateCost(ctx context.Context, id string, cost float64) error {
	m.record("UpdateCost", id, cost)
	if m.UpdateCostFunc != nil {
		return m.UpdateCostFunc(ctx, id, cost)
	}
	return nil
}

func (m *Mock) UpdateBarcode(ctx context.Context, id, barcode string) error {
	m.record("UpdateBarcode", id, barcode)
	if m.UpdateBarcodeFunc != nil {
		return m.UpdateBarcodeFunc(ctx, id, barcode)
	}
	return nil
}

func (m *Mock) UpdateName(ctx context.Context, id, name string) error {
	m.record("UpdateName", id, name)
	if m.UpdateNameFunc != nil {
		return m.UpdateNameFunc(ctx, id, name)
	}
	return nil
}
