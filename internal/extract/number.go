// Package extract turns loosely typed Gizmo payloads and UI input into the
// canonical records used by reconciliation.
package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gizmo-stock/internal/model"
)

// Number coerces v to a finite float64, returning fallback for nil, blank,
// non-numeric, NaN or infinite input.
func Number(v any, fallback float64) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}

// Int coerces v to an int, truncating toward zero.
func Int(v any, fallback int) int {
	if f, ok := toFloat(v); ok {
		return int(f)
	}
	return fallback
}

// OptionalFloat returns nil when v carries no usable number.
func OptionalFloat(v any) *float64 {
	if f, ok := toFloat(v); ok {
		return &f
	}
	return nil
}

// String renders ids and text fields that may arrive as numbers.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Bool reads boolean flags that some POS versions send as 0/1 or "true".
func Bool(v any, fallback bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	case float64:
		return t != 0
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n != 0
		}
	}
	return fallback
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, ok := model.ParseMoney(t)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
