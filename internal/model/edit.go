package model

// PendingEdit is the sparse set of changes a user has entered for one product.
// An absent field means no change was requested for it.
type PendingEdit struct {
	Counted Opt[int]     `json:"countedValue,omitzero"`
	Added   Opt[int]     `json:"addedValue,omitzero"`
	Waste   Opt[int]     `json:"wasteValue,omitzero"`
	Price   Opt[float64] `json:"pendingPrice,omitzero"`
	Cost    Opt[float64] `json:"pendingCost,omitzero"`
	Barcode Opt[string]  `json:"pendingBarcode,omitzero"`
	Name    Opt[string]  `json:"pendingName,omitzero"`
}

// EditField names a pending edit field by its JSON key.
type EditField string

const (
	FieldCounted EditField = "countedValue"
	FieldAdded   EditField = "addedValue"
	FieldWaste   EditField = "wasteValue"
	FieldPrice   EditField = "pendingPrice"
	FieldCost    EditField = "pendingCost"
	FieldBarcode EditField = "pendingBarcode"
	FieldName    EditField = "pendingName"
)

// IsEmpty reports whether no field is set.
func (e PendingEdit) IsEmpty() bool {
	return !e.Counted.IsSet() && !e.Added.IsSet() && !e.Waste.IsSet() &&
		!e.Price.IsSet() && !e.Cost.IsSet() && !e.Barcode.IsSet() && !e.Name.IsSet()
}

// Merge overlays the fields set in other onto e.
func (e PendingEdit) Merge(other PendingEdit) PendingEdit {
	if other.Counted.IsSet() {
		e.Counted = other.Counted
	}
	if other.Added.IsSet() {
		e.Added = other.Added
	}
	if other.Waste.IsSet() {
		e.Waste = other.Waste
	}
	if other.Price.IsSet() {
		e.Price = other.Price
	}
	if other.Cost.IsSet() {
		e.Cost = other.Cost
	}
	if other.Barcode.IsSet() {
		e.Barcode = other.Barcode
	}
	if other.Name.IsSet() {
		e.Name = other.Name
	}
	return e
}

// Without returns e with the named fields withdrawn.
func (e PendingEdit) Without(fields ...EditField) PendingEdit {
	for _, f := range fields {
		switch f {
		case FieldCounted:
			e.Counted = None[int]()
		case FieldAdded:
			e.Added = None[int]()
		case FieldWaste:
			e.Waste = None[int]()
		case FieldPrice:
			e.Price = None[float64]()
		case FieldCost:
			e.Cost = None[float64]()
		case FieldBarcode:
			e.Barcode = None[string]()
		case FieldName:
			e.Name = None[string]()
		}
	}
	return e
}
