package reconcile

import (
	"sort"
	"time"

	"gizmo-stock/internal/model"
)

// Update is one product's write in a single category.
// Only the value matching Category is meaningful.
type Update struct {
	ProductID   string
	ProductName string
	Category    model.Category
	Count       int
	Amount      float64
	Text        string
}

// Plan is the reconciled form of a batch of edits, split by category so each
// category can be dispatched on its own.
type Plan struct {
	Results []Result
	Unknown []string

	byID    map[string]int
	updates map[model.Category][]Update
}

// BuildPlan diffs every edited product against its baseline. Results follow
// the order of products; edits for ids not in products land in Unknown.
func BuildPlan(products []model.Product, edits map[string]model.PendingEdit, at time.Time) *Plan {
	p := &Plan{
		byID:    make(map[string]int),
		updates: make(map[model.Category][]Update),
	}

	known := make(map[string]bool, len(products))
	for _, product := range products {
		known[product.ID] = true
		edit, ok := edits[product.ID]
		if !ok || edit.IsEmpty() {
			continue
		}

		r := Diff(product, edit, at)
		p.byID[product.ID] = len(p.Results)
		p.Results = append(p.Results, r)

		for _, c := range r.Categories() {
			p.updates[c] = append(p.updates[c], updateFor(r, c))
		}
	}

	for id := range edits {
		if !known[id] {
			p.Unknown = append(p.Unknown, id)
		}
	}
	sort.Strings(p.Unknown)
	return p
}

func updateFor(r Result, c model.Category) Update {
	u := Update{ProductID: r.ProductID, ProductName: r.ProductName, Category: c}
	switch c {
	case model.CategoryStock:
		u.Count = r.FinalCount
	case model.CategoryPrice:
		u.Amount = r.NewPrice
	case model.CategoryCost:
		u.Amount = r.NewCost
	case model.CategoryBarcode:
		u.Text = r.NewBarcode
	case model.CategoryName:
		u.Text = r.NewName
	}
	return u
}

// Updates returns the writes for category c in baseline order.
func (p *Plan) Updates(c model.Category) []Update {
	return p.updates[c]
}

// Result returns the diff for a product id.
func (p *Plan) Result(id string) (Result, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Result{}, false
	}
	return p.Results[i], true
}

// HasWrites reports whether any category has work to dispatch.
func (p *Plan) HasWrites() bool {
	for _, u := range p.updates {
		if len(u) > 0 {
			return true
		}
	}
	return false
}
