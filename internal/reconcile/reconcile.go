// Package reconcile computes the field-level updates implied by a user's
// pending edits against the baseline product. It is pure: no I/O, no clock.
//
// The diff law:
//
//	finalCount = counted + added          when a count was entered
//	           = stock + added            when only a positive addition was entered
//	           = stock                    otherwise
//
// Waste never moves finalCount; it only produces a waste cost for reporting.
// Prices and costs compare with a 0.0001 tolerance so float noise does not
// re-trigger identical updates.
package reconcile

import (
	"math"
	"strings"
	"time"

	"gizmo-stock/internal/model"
)

// Epsilon is the tolerance for price and cost comparisons.
const Epsilon = 0.0001

// Result is the diff of one product.
type Result struct {
	ProductID   string
	ProductName string

	FinalCount int
	NewPrice   float64
	NewCost    float64
	NewBarcode string
	NewName    string

	StockChanged   bool
	PriceChanged   bool
	CostChanged    bool
	BarcodeChanged bool
	NameChanged    bool

	// CountedUnchanged is set when a count was entered but stock did not move.
	// The product still counts as counted for the session.
	CountedUnchanged bool

	// Record is nil when nothing changed.
	Record *model.ChangeRecord
}

// Changed reports whether any field needs to be sent to the POS.
func (r Result) Changed() bool {
	return r.StockChanged || r.PriceChanged || r.CostChanged || r.BarcodeChanged || r.NameChanged
}

// Categories lists the changed categories in apply order.
func (r Result) Categories() []model.Category {
	var cats []model.Category
	for _, c := range model.Categories {
		if r.Has(c) {
			cats = append(cats, c)
		}
	}
	return cats
}

// Has reports whether category c changed.
func (r Result) Has(c model.Category) bool {
	switch c {
	case model.CategoryStock:
		return r.StockChanged
	case model.CategoryPrice:
		return r.PriceChanged
	case model.CategoryCost:
		return r.CostChanged
	case model.CategoryBarcode:
		return r.BarcodeChanged
	case model.CategoryName:
		return r.NameChanged
	}
	return false
}

// Apply returns baseline with the confirmed categories of r written in.
func (r Result) Apply(baseline model.Product, confirmed ...model.Category) model.Product {
	for _, c := range confirmed {
		if !r.Has(c) {
			continue
		}
		switch c {
		case model.CategoryStock:
			baseline.Stock = r.FinalCount
		case model.CategoryPrice:
			baseline.Price = model.Float(r.NewPrice)
		case model.CategoryCost:
			baseline.Cost = model.Float(r.NewCost)
		case model.CategoryBarcode:
			baseline.Barcode = r.NewBarcode
		case model.CategoryName:
			baseline.Name = r.NewName
		}
	}
	return baseline
}

// Diff reconciles edit against baseline. at stamps the change record.
func Diff(baseline model.Product, edit model.PendingEdit, at time.Time) Result {
	r := Result{ProductID: baseline.ID, ProductName: baseline.Name}

	counted, hasCounted := edit.Counted.Get()
	added := edit.Added.Or(0)
	switch {
	case hasCounted:
		r.FinalCount = counted + added
	case added > 0:
		r.FinalCount = baseline.Stock + added
	default:
		r.FinalCount = baseline.Stock
	}
	r.StockChanged = r.FinalCount != baseline.Stock
	r.CountedUnchanged = hasCounted && !r.StockChanged

	if price, ok := edit.Price.Get(); ok && amountChanged(baseline.Price, price) {
		r.PriceChanged = true
		r.NewPrice = price
	}
	if cost, ok := edit.Cost.Get(); ok && amountChanged(baseline.Cost, cost) {
		r.CostChanged = true
		r.NewCost = cost
	}
	if barcode, ok := textChanged(baseline.Barcode, edit.Barcode); ok {
		r.BarcodeChanged = true
		r.NewBarcode = barcode
	}
	if name, ok := textChanged(baseline.Name, edit.Name); ok {
		r.NameChanged = true
		r.NewName = name
	}

	if r.Changed() {
		r.Record = buildRecord(baseline, edit, r, at)
	}
	return r
}

func amountChanged(previous *float64, next float64) bool {
	return previous == nil || math.Abs(next-*previous) > Epsilon
}

func textChanged(previous string, next model.Opt[string]) (string, bool) {
	v, ok := next.Get()
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" || v == previous {
		return "", false
	}
	return v, true
}

func buildRecord(baseline model.Product, edit model.PendingEdit, r Result, at time.Time) *model.ChangeRecord {
	rec := &model.ChangeRecord{
		ProductID:     baseline.ID,
		ProductName:   baseline.Name,
		Date:          at,
		Reason:        Reason(r, edit),
		PreviousCount: baseline.Stock,
		CountedValue:  edit.Counted.Ptr(),
		AddedValue:    edit.Added.Or(0),
		WasteValue:    edit.Waste.Ptr(),
		FinalCount:    r.FinalCount,
	}

	if r.StockChanged {
		rec.ChangeValue = r.FinalCount - baseline.Stock
	}
	if waste, ok := edit.Waste.Get(); ok && baseline.Cost != nil {
		rec.WasteCost = model.Float(model.MoneyTimes(float64(waste), *baseline.Cost))
	}

	if r.PriceChanged {
		rec.PreviousPrice = baseline.Price
		rec.NewPrice = model.Float(r.NewPrice)
		rec.PriceChange = model.Float(delta(baseline.Price, r.NewPrice))
	}
	if r.CostChanged {
		rec.PreviousCost = baseline.Cost
		rec.NewCost = model.Float(r.NewCost)
		rec.CostChange = model.Float(delta(baseline.Cost, r.NewCost))
	}
	if r.BarcodeChanged {
		rec.PreviousBarcode = baseline.Barcode
		rec.NewBarcode = r.NewBarcode
	}
	if r.NameChanged {
		rec.PreviousName = baseline.Name
		rec.NewName = r.NewName
	}
	return rec
}

// delta is next - previous, or next itself for an initial assignment.
func delta(previous *float64, next float64) float64 {
	if previous == nil {
		return next
	}
	return model.MoneyDelta(next, *previous)
}

// Reason derives the reason tag. The first matching stock/price/cost
// combination wins; barcode and name changes are appended with " + ".
func Reason(r Result, edit model.PendingEdit) string {
	var primary string
	switch {
	case r.StockChanged && r.PriceChanged && r.CostChanged:
		primary = model.ReasonStockPriceCost
	case r.StockChanged && r.PriceChanged:
		primary = model.ReasonStockPrice
	case r.StockChanged && r.CostChanged:
		primary = model.ReasonStockCost
	case r.PriceChanged && r.CostChanged:
		primary = model.ReasonPriceCost
	case r.StockChanged:
		primary = stockReason(edit)
	case r.PriceChanged:
		primary = model.ReasonPrice
	case r.CostChanged:
		primary = model.ReasonCost
	}

	parts := make([]string, 0, 3)
	if primary != "" {
		parts = append(parts, primary)
	}
	if r.BarcodeChanged {
		parts = append(parts, model.ReasonBarcode)
	}
	if r.NameChanged {
		parts = append(parts, model.ReasonName)
	}
	if len(parts) == 0 {
		return model.ReasonCost
	}
	return strings.Join(parts, " + ")
}

func stockReason(edit model.PendingEdit) string {
	added := edit.Added.Or(0)
	switch {
	case edit.Counted.IsSet() && added != 0:
		return model.ReasonCountAddition
	case edit.Counted.IsSet():
		return model.ReasonCount
	default:
		return model.ReasonAddition
	}
}
