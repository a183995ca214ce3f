package extract

import (
	"encoding/json"
	"math"
	"strings"

	"gizmo-stock/internal/model"
)

// EditInput is an edit as typed by a user. Values may be numbers, numeric
// strings, blank strings or null.
type EditInput struct {
	CountedValue   any `json:"countedValue,omitempty"`
	AddedValue     any `json:"addedValue,omitempty"`
	WasteValue     any `json:"wasteValue,omitempty"`
	PendingPrice   any `json:"pendingPrice,omitempty"`
	PendingCost    any `json:"pendingCost,omitempty"`
	PendingBarcode any `json:"pendingBarcode,omitempty"`
	PendingName    any `json:"pendingName,omitempty"`

	// present holds the keys of a decoded JSON body, so an explicit null
	// can be told apart from a missing key.
	present map[model.EditField]bool
}

// UnmarshalJSON decodes the known keys and remembers which were sent.
func (in *EditInput) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = EditInput{present: make(map[model.EditField]bool, len(raw))}
	for key, v := range raw {
		field := model.EditField(key)
		switch field {
		case model.FieldCounted:
			in.CountedValue = v
		case model.FieldAdded:
			in.AddedValue = v
		case model.FieldWaste:
			in.WasteValue = v
		case model.FieldPrice:
			in.PendingPrice = v
		case model.FieldCost:
			in.PendingCost = v
		case model.FieldBarcode:
			in.PendingBarcode = v
		case model.FieldName:
			in.PendingName = v
		default:
			continue
		}
		in.present[field] = true
	}
	return nil
}

func (in EditInput) values() map[model.EditField]any {
	return map[model.EditField]any{
		model.FieldCounted: in.CountedValue,
		model.FieldAdded:   in.AddedValue,
		model.FieldWaste:   in.WasteValue,
		model.FieldPrice:   in.PendingPrice,
		model.FieldCost:    in.PendingCost,
		model.FieldBarcode: in.PendingBarcode,
		model.FieldName:    in.PendingName,
	}
}

// Edit normalizes user input. Blank, NaN and malformed values become absent
// rather than zero; invalid input is dropped, never reported.
func Edit(in EditInput) model.PendingEdit {
	return model.PendingEdit{
		Counted: count(in.CountedValue, false),
		Added:   count(in.AddedValue, true),
		Waste:   count(in.WasteValue, false),
		Price:   amount(in.PendingPrice),
		Cost:    amount(in.PendingCost),
		Barcode: text(in.PendingBarcode),
		Name:    text(in.PendingName),
	}
}

// Cleared lists the fields the user blanked: sent as null, an empty
// string or NaN. Missing keys and malformed values are not included.
// Without a decoded body, a nil value counts as missing.
func Cleared(in EditInput) []model.EditField {
	var fields []model.EditField
	values := in.values()
	for _, field := range []model.EditField{
		model.FieldCounted, model.FieldAdded, model.FieldWaste,
		model.FieldPrice, model.FieldCost, model.FieldBarcode, model.FieldName,
	} {
		v := values[field]
		sent := v != nil
		if in.present != nil {
			sent = in.present[field]
		}
		if sent && blank(v) {
			fields = append(fields, field)
		}
	}
	return fields
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || strings.EqualFold(s, "nan")
	case float64:
		return math.IsNaN(t)
	}
	return false
}

func count(v any, allowNegative bool) model.Opt[int] {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return model.None[int]()
	}
	if f < 0 && !allowNegative {
		return model.None[int]()
	}
	return model.Some(int(f))
}

func amount(v any) model.Opt[float64] {
	f, ok := toFloat(v)
	if !ok || f < 0 {
		return model.None[float64]()
	}
	return model.Some(f)
}

func text(v any) model.Opt[string] {
	s, ok := v.(string)
	if !ok {
		s = String(v)
	}
	if strings.TrimSpace(s) == "" {
		return model.None[string]()
	}
	return model.Some(s)
}
