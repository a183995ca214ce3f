// Package inventory is the stock-counting front end's service layer: it
// owns the product baseline and pending edits, and drives reconcile → batch
// dispatch → ledger for every apply.
package inventory

import (
	"context"
	"log/slog"
	"sync"

	"gizmo-stock/internal/adapter"
	"gizmo-stock/internal/batch"
	"gizmo-stock/internal/cache"
	"gizmo-stock/internal/clock"
	"gizmo-stock/internal/metrics"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/session"
	"gizmo-stock/internal/store"
)

// AuditSink records applied price and cost changes.
type AuditSink interface {
	AppendAudit(ctx context.Context, entries ...store.AuditEntry) error
}

// Options wires a Service. POS and Ledger are required.
type Options struct {
	POS        adapter.POS
	Ledger     *session.Ledger
	Dispatcher *batch.Dispatcher
	Images     *cache.TTLCache[string]
	Products   *cache.TTLCache[[]model.Product]
	Audit      AuditSink
	Metrics    *metrics.Metrics
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Service is safe for concurrent use. Applies are serialized.
type Service struct {
	pos        adapter.POS
	ledger     *session.Ledger
	dispatcher *batch.Dispatcher
	images     *cache.TTLCache[string]
	products   *cache.TTLCache[[]model.Product]
	audit      AuditSink
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *slog.Logger

	applyMu sync.Mutex

	mu       sync.RWMutex
	baseline map[string]model.Product
	order    []string
	edits    map[string]model.PendingEdit
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		pos:        opts.POS,
		ledger:     opts.Ledger,
		dispatcher: opts.Dispatcher,
		images:     opts.Images,
		products:   opts.Products,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		logger:     opts.Logger,
		baseline:   make(map[string]model.Product),
		edits:      make(map[string]model.PendingEdit),
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.dispatcher == nil {
		s.dispatcher = batch.New(batch.Options{Logger: s.logger})
	}
	if s.images == nil {
		s.images = cache.New[string](cache.Options{Name: "images", TTL: cache.ImageTTL, Clock: s.clock})
	}
	if s.products == nil {
		s.products = cache.New[[]model.Product](cache.Options{Name: "products", TTL: cache.ProductTTL, Clock: s.clock})
	}
	return s
}

// Products lists products, serving from the product cache when fresh. The
// result becomes the baseline edits are diffed against.
func (s *Service) Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	key := q.CacheKey()
	if products, ok := s.products.Get(key); ok {
		s.setBaseline(products)
		return products, nil
	}
	return s.fetchProducts(ctx, q)
}

// RefreshProducts bypasses the product cache.
func (s *Service) RefreshProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	s.products.Delete(q.CacheKey())
	return s.fetchProducts(ctx, q)
}

func (s *Service) fetchProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	page, err := s.pos.ListProducts(ctx, q)
	if err != nil {
		return nil, err
	}
	products := page.Products
	if products == nil {
		products = []model.Product{}
	}

	s.products.Set(q.CacheKey(), products)
	s.saveCache(ctx, s.products.Save)
	s.setBaseline(products)
	return products, nil
}

// setBaseline merges products into the baseline and remembers their order.
func (s *Service) setBaseline(products []model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]string, 0, len(products))
	for _, p := range products {
		s.baseline[p.ID] = p
		s.order = append(s.order, p.ID)
	}
}

// Product returns the baseline record for id.
func (s *Service) Product(id string) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.baseline[id]
	return p, ok
}

// Groups lists product groups.
func (s *Service) Groups(ctx context.Context) ([]model.ProductGroup, error) {
	return s.pos.ListGroups(ctx)
}

// ProductImage returns the product's image URL, cached for a day. A product
// without an image yields "".
func (s *Service) ProductImage(ctx context.Context, id string) (string, error) {
	if u, ok := s.images.Get(id); ok {
		return u, nil
	}
	u, err := s.pos.GetProductImage(ctx, id)
	if err != nil {
		return "", err
	}
	if u != "" {
		s.images.Set(id, u)
		s.saveCache(ctx, s.images.Save)
	}
	return u, nil
}

// Stock returns the live stock count from the POS.
func (s *Service) Stock(ctx context.Context, id string) (int, error) {
	return s.pos.GetStock(ctx, id)
}

func (s *Service) saveCache(ctx context.Context, save func(context.Context) error) {
	if err := save(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("persisting cache", slog.String("error", err.Error()))
	}
}

// SetEdit merges edit into the pending edits for a product in the
// baseline. Fields absent from edit keep their pending value unless named
// in withdraw.
func (s *Service) SetEdit(id string, edit model.PendingEdit, withdraw ...model.EditField) (model.PendingEdit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.baseline[id]; !ok {
		return model.PendingEdit{}, model.NewNotFoundError("product " + id)
	}
	merged := s.edits[id].Without(withdraw...).Merge(edit)
	if merged.IsEmpty() {
		delete(s.edits, id)
		return merged, nil
	}
	s.edits[id] = merged
	return merged, nil
}

// ClearEdit drops the pending edits for id.
func (s *Service) ClearEdit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edits, id)
}

// PendingEdits returns a copy of every pending edit.
func (s *Service) PendingEdits() map[string]model.PendingEdit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.PendingEdit, len(s.edits))
	for id, e := range s.edits {
		out[id] = e
	}
	return out
}

// Session passthrough.

func (s *Service) StartSession(ctx context.Context) (session.Session, error) {
	sess, err := s.ledger.Start(ctx)
	if err == nil {
		s.observeSession()
	}
	return sess, err
}

func (s *Service) EndSession(ctx context.Context) (session.Session, error) {
	return s.ledger.End(ctx)
}

func (s *Service) ClearSession(ctx context.Context) {
	s.ledger.Clear(ctx)
	s.observeSession()
}

func (s *Service) Session() (session.Session, bool) {
	return s.ledger.Session()
}

func (s *Service) CountedIDs() []string {
	return s.ledger.CountedIDs()
}

func (s *Service) observeSession() {
	if s.metrics == nil {
		return
	}
	sess, _ := s.ledger.Session()
	s.metrics.SetSessionChanges(sess.TotalChanges)
}
