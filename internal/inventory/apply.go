package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gizmo-stock/internal/batch"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/operator"
	"gizmo-stock/internal/reconcile"
	"gizmo-stock/internal/session"
	"gizmo-stock/internal/store"
)

// Progress reports progress within one category batch.
type Progress struct {
	Category model.Category `json:"category"`
	Current  int            `json:"current"`
	Total    int            `json:"total"`
}

// CategorySummary counts one category batch's outcomes.
type CategorySummary struct {
	Category  model.Category `json:"category"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// ItemResult is what happened to one edited product.
type ItemResult struct {
	ProductID   string                    `json:"productId"`
	ProductName string                    `json:"productName"`
	Applied     []model.Category          `json:"applied,omitempty"`
	Failed      []model.Category          `json:"failed,omitempty"`
	Errors      map[model.Category]string `json:"errors,omitempty"`
	Recorded    bool                      `json:"recorded"`
	Counted     bool                      `json:"counted"`
	Product     model.Product             `json:"product"`
}

// Summary aggregates an apply. Succeeded and Failed count products with
// changes; Unchanged counts edits that matched the baseline.
type Summary struct {
	Categories     []CategorySummary `json:"categories"`
	Items          []ItemResult      `json:"items"`
	Succeeded      int               `json:"succeeded"`
	Failed         int               `json:"failed"`
	Unchanged      int               `json:"unchanged"`
	FailedProducts []string          `json:"failedProducts,omitempty"`
	Unknown        []string          `json:"unknown,omitempty"`
	Partial        bool              `json:"partial"`
	AllFailed      bool              `json:"allFailed"`
	Message        string            `json:"message"`
}

// ApplyAll reconciles every pending edit and pushes the resulting updates,
// one category at a time in the order stock, price, cost, barcode, name.
//
// The baseline takes every confirmed write. A product's change record goes
// to the session, and its edit is cleared, only when all of its writes
// succeeded. A product is marked counted when a counted value was given and
// the stock write succeeded or was unnecessary.
func (s *Service) ApplyAll(ctx context.Context, progress func(Progress)) Summary {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.RLock()
	ids := make([]string, 0, len(s.edits))
	for _, id := range s.order {
		if _, ok := s.edits[id]; ok {
			ids = append(ids, id)
		}
	}
	var extra []string
	for id := range s.edits {
		if !containsID(ids, id) {
			extra = append(extra, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(extra)
	ids = append(ids, extra...)

	return s.apply(ctx, ids, progress)
}

// ApplyOne applies the pending edit of a single product.
func (s *Service) ApplyOne(ctx context.Context, id string) (Summary, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.RLock()
	_, known := s.baseline[id]
	_, edited := s.edits[id]
	s.mu.RUnlock()

	if !known {
		return Summary{}, model.NewNotFoundError("product " + id)
	}
	if !edited {
		return Summary{}, model.NewNotFoundError("pending edit for product " + id)
	}
	return s.apply(ctx, []string{id}, nil), nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// apply runs one reconcile → dispatch → commit cycle. Callers hold applyMu.
func (s *Service) apply(ctx context.Context, ids []string, progress func(Progress)) Summary {
	s.mu.RLock()
	products := make([]model.Product, 0, len(ids))
	edits := make(map[string]model.PendingEdit, len(ids))
	for _, id := range ids {
		if p, ok := s.baseline[id]; ok {
			products = append(products, p)
		}
		edits[id] = s.edits[id]
	}
	s.mu.RUnlock()

	plan := reconcile.BuildPlan(products, edits, s.clock.Now())

	failures := make(map[string]map[model.Category]error)
	var summary Summary
	for _, c := range model.Categories {
		updates := plan.Updates(c)
		if len(updates) == 0 {
			continue
		}
		cs := s.dispatch(ctx, c, updates, progress, failures)
		summary.Categories = append(summary.Categories, cs)
	}

	s.commit(ctx, plan, edits, failures, &summary)
	summary.Unknown = plan.Unknown
	summary.finish()

	s.logger.Info("apply finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Bool("partial", summary.Partial),
	)
	return summary
}

func (s *Service) dispatch(ctx context.Context, c model.Category, updates []reconcile.Update, progress func(Progress), failures map[string]map[model.Category]error) CategorySummary {
	started := time.Now()

	var onProgress func(batch.Progress)
	if progress != nil {
		onProgress = func(p batch.Progress) {
			progress(Progress{Category: c, Current: p.Current, Total: p.Total})
		}
	}

	outcomes := batch.Dispatch(ctx, s.dispatcher, updates,
		func(u reconcile.Update) string { return u.ProductID },
		s.write,
		onProgress,
	)

	cs := CategorySummary{Category: c}
	for _, o := range outcomes {
		if s.metrics != nil {
			s.metrics.ObserveUpdate(string(c), o.Success)
		}
		if o.Success {
			cs.Succeeded++
			continue
		}
		cs.Failed++
		if failures[o.ProductID] == nil {
			failures[o.ProductID] = make(map[model.Category]error)
		}
		failures[o.ProductID][c] = o.Err
	}

	if s.metrics != nil {
		s.metrics.ObserveBatch(string(c), time.Since(started))
	}
	s.logger.Info("category batch dispatched",
		slog.String("category", string(c)),
		slog.Int("succeeded", cs.Succeeded),
		slog.Int("failed", cs.Failed),
		slog.Duration("duration", time.Since(started)),
	)
	return cs
}

// write sends one update to the POS.
func (s *Service) write(ctx context.Context, u reconcile.Update) error {
	switch u.Category {
	case model.CategoryStock:
		return s.pos.UpdateStock(ctx, u.ProductID, u.Count)
	case model.CategoryPrice:
		return s.pos.UpdatePrice(ctx, u.ProductID, u.Amount)
	case model.CategoryCost:
		return s.pos.UpdateCost(ctx, u.ProductID, u.Amount)
	case model.CategoryBarcode:
		return s.pos.UpdateBarcode(ctx, u.ProductID, u.Text)
	case model.CategoryName:
		return s.pos.UpdateName(ctx, u.ProductID, u.Text)
	}
	return fmt.Errorf("%w: unknown update category %q", model.ErrInvalidRequest, u.Category)
}

// commit folds the dispatch results back into the baseline, the edits, the
// ledger and the audit trail.
func (s *Service) commit(ctx context.Context, plan *reconcile.Plan, edits map[string]model.PendingEdit, failures map[string]map[model.Category]error, summary *Summary) {
	now := s.clock.Now()
	changedBy := operator.FromContext(ctx).String()
	var sessionID string
	if sess, ok := s.ledger.Session(); ok && sess.Status == session.StatusActive {
		sessionID = sess.ID
	}

	var (
		audits  []store.AuditEntry
		counted []string
		wrote   bool
	)

	s.mu.Lock()
	for _, r := range plan.Results {
		edit := edits[r.ProductID]
		previous := s.baseline[r.ProductID]

		item := ItemResult{ProductID: r.ProductID, ProductName: r.ProductName}
		for _, c := range r.Categories() {
			if err, failed := failures[r.ProductID][c]; failed {
				item.Failed = append(item.Failed, c)
				if item.Errors == nil {
					item.Errors = make(map[model.Category]string)
				}
				item.Errors[c] = errorText(err)
				continue
			}
			item.Applied = append(item.Applied, c)
		}
		if len(item.Applied) > 0 {
			wrote = true
		}

		item.Product = r.Apply(previous, item.Applied...)
		s.baseline[r.ProductID] = item.Product

		allOK := len(item.Failed) == 0
		if s.edits[r.ProductID] == edit {
			switch {
			case allOK:
				delete(s.edits, r.ProductID)
			case containsCategory(item.Applied, model.CategoryStock):
				s.edits[r.ProductID] = settleStock(edit, r.FinalCount)
			}
		}
		if allOK && r.Record != nil {
			item.Recorded = s.ledger.AddChange(ctx, *r.Record)
		}
		if edit.Counted.IsSet() && (r.CountedUnchanged || containsCategory(item.Applied, model.CategoryStock)) {
			counted = append(counted, r.ProductID)
			item.Counted = true
		}

		for _, c := range item.Applied {
			switch c {
			case model.CategoryPrice:
				audits = append(audits, store.AuditEntry{
					ProductID: r.ProductID, Field: string(c),
					Previous: previous.Price, Next: model.Float(r.NewPrice),
					ChangedBy: changedBy, SessionID: sessionID, At: now,
				})
			case model.CategoryCost:
				audits = append(audits, store.AuditEntry{
					ProductID: r.ProductID, Field: string(c),
					Previous: previous.Cost, Next: model.Float(r.NewCost),
					ChangedBy: changedBy, SessionID: sessionID, At: now,
				})
			}
		}

		switch {
		case !r.Changed():
			summary.Unchanged++
		case allOK:
			summary.Succeeded++
		default:
			summary.Failed++
			summary.FailedProducts = append(summary.FailedProducts, displayName(r))
		}
		summary.Items = append(summary.Items, item)
	}
	s.mu.Unlock()

	if len(counted) > 0 && !s.ledger.MarkCounted(ctx, counted...) {
		for i := range summary.Items {
			summary.Items[i].Counted = false
		}
	}

	if len(audits) > 0 && s.audit != nil {
		if err := s.audit.AppendAudit(context.WithoutCancel(ctx), audits...); err != nil {
			s.logger.Warn("writing audit trail", slog.String("error", err.Error()))
		}
	}

	if wrote {
		// Listings cached before the write no longer match the POS.
		s.products.Flush()
		s.saveCache(ctx, s.products.Save)
	}
	s.observeSession()
}

// settleStock rewrites the stock part of an edit whose stock write was
// confirmed, so a retry of the remaining categories cannot add received
// units a second time.
func settleStock(e model.PendingEdit, final int) model.PendingEdit {
	e.Added = model.None[int]()
	if e.Counted.IsSet() {
		e.Counted = model.Some(final)
	}
	return e
}

func containsCategory(cs []model.Category, c model.Category) bool {
	for _, v := range cs {
		if v == c {
			return true
		}
	}
	return false
}

func displayName(r reconcile.Result) string {
	if r.ProductName != "" {
		return r.ProductName
	}
	return r.ProductID
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// finish derives the flags and message.
func (sum *Summary) finish() {
	var ok, failed int
	for _, c := range sum.Categories {
		ok += c.Succeeded
		failed += c.Failed
	}
	sum.Partial = ok > 0 && failed > 0
	sum.AllFailed = failed > 0 && ok == 0

	var b strings.Builder
	switch {
	case sum.Succeeded == 0 && sum.Failed == 0 && sum.Unchanged == 0:
		b.WriteString("No pending changes")
	case sum.Failed == 0:
		fmt.Fprintf(&b, "Applied changes to %d product(s)", sum.Succeeded)
		if sum.Unchanged > 0 {
			fmt.Fprintf(&b, ", %d unchanged", sum.Unchanged)
		}
	case sum.AllFailed:
		fmt.Fprintf(&b, "All updates failed for %d product(s): %s", sum.Failed, strings.Join(sum.FailedProducts, ", "))
	default:
		fmt.Fprintf(&b, "Applied changes to %d product(s); %d failed: %s",
			sum.Succeeded, sum.Failed, strings.Join(sum.FailedProducts, ", "))
	}

	if len(sum.Categories) > 0 {
		parts := make([]string, len(sum.Categories))
		for i, c := range sum.Categories {
			parts[i] = fmt.Sprintf("%s %d/%d", c.Category, c.Succeeded, c.Succeeded+c.Failed)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ", "))
	}
	sum.Message = b.String()
}
