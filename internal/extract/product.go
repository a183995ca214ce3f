package extract

import (
	"strings"

	"gizmo-stock/internal/model"
)

// Alias fields are checked in order; the first usable value wins.
var (
	priceFields = []string{"price", "salePrice", "sellPrice", "unitPrice", "retailPrice", "defaultPrice", "priceWithTax"}
	costFields  = []string{"cost", "costPrice", "purchasePrice", "buyPrice"}
	stockFields = []string{"stock", "stockCount", "quantity", "onHand"}
)

// Price returns the first finite non-negative price found among the alias
// fields, or nil when the product has no known price.
func Price(raw map[string]any) *float64 {
	if p := firstAmount(raw, priceFields); p != nil {
		return p
	}
	prices, ok := raw["prices"].([]any)
	if !ok || len(prices) == 0 {
		return nil
	}
	first, ok := prices[0].(map[string]any)
	if !ok {
		return nil
	}
	return firstAmount(first, []string{"price", "value"})
}

// Cost returns the first finite non-negative cost among the alias fields.
func Cost(raw map[string]any) *float64 {
	return firstAmount(raw, costFields)
}

func firstAmount(raw map[string]any, fields []string) *float64 {
	for _, field := range fields {
		if f, ok := toFloat(raw[field]); ok && f >= 0 {
			return &f
		}
	}
	return nil
}

func firstString(raw map[string]any, fields ...string) string {
	for _, field := range fields {
		if s := strings.TrimSpace(String(raw[field])); s != "" {
			return s
		}
	}
	return ""
}

// Product converts a raw POS product into the canonical record.
// baseURL resolves server-relative image paths.
func Product(raw map[string]any, baseURL string) model.Product {
	p := model.Product{
		ID:           firstString(raw, "id", "productId"),
		Name:         firstString(raw, "name", "productName"),
		Barcode:      firstString(raw, "barcode", "barCode", "ean"),
		Price:        Price(raw),
		Cost:         Cost(raw),
		GroupID:      firstString(raw, "productGroupId", "groupId"),
		IsDeleted:    Bool(raw["isDeleted"], false),
		StockEnabled: true,
	}

	for _, field := range stockFields {
		if f, ok := toFloat(raw[field]); ok {
			p.Stock = int(f)
			break
		}
	}

	for _, field := range []string{"isStockEnabled", "enableStock", "trackStock"} {
		if v, ok := raw[field]; ok {
			p.StockEnabled = Bool(v, true)
			break
		}
	}

	for _, field := range []string{"imageUrl", "image", "defaultImage"} {
		if url := ImageURL(raw[field], baseURL); url != "" {
			p.ImageURL = url
			break
		}
	}

	return p
}

// Group converts a raw POS product group.
func Group(raw map[string]any) model.ProductGroup {
	return model.ProductGroup{
		ID:        firstString(raw, "id"),
		Name:      firstString(raw, "name"),
		ParentID:  firstString(raw, "parentId", "parentGroupId"),
		IsDeleted: Bool(raw["isDeleted"], false),
	}
}
