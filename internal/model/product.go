package model

import (
	"fmt"
	"sort"
	"strings"
)

// Product is the canonical record of a POS product.
// It is the baseline edits are diffed against; it changes only when the POS
// confirms an update.
type Product struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Barcode      string   `json:"barcode"`
	Stock        int      `json:"stock"`
	Price        *float64 `json:"price,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
	GroupID      string   `json:"productGroupId,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	IsDeleted    bool     `json:"isDeleted"`
	StockEnabled bool     `json:"stockEnabled"`
}

// ProductGroup is a POS product category.
type ProductGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ParentID  string `json:"parentId,omitempty"`
	IsDeleted bool   `json:"isDeleted"`
}

// ProductQuery filters a product listing.
type ProductQuery struct {
	IncludeDeleted bool     `json:"includeDeleted,omitempty"`
	GroupIDs       []string `json:"groupIds,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

// CacheKey identifies the query in the product-list cache.
func (q ProductQuery) CacheKey() string {
	groups := append([]string(nil), q.GroupIDs...)
	sort.Strings(groups)
	return fmt.Sprintf("deleted=%t;groups=%s;limit=%d", q.IncludeDeleted, strings.Join(groups, ","), q.Limit)
}

// ProductPage is one product listing response.
type ProductPage struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"totalCount"`
}

// ProductPatch lists the fields a full-record update should overwrite.
// Absent fields are copied from the freshly fetched record.
type ProductPatch struct {
	Name      Opt[string]  `json:"name,omitzero"`
	Price     Opt[float64] `json:"price,omitzero"`
	Cost      Opt[float64] `json:"cost,omitzero"`
	Barcode   Opt[string]  `json:"barcode,omitzero"`
	IsDeleted Opt[bool]    `json:"isDeleted,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return !p.Name.IsSet() && !p.Price.IsSet() && !p.Cost.IsSet() &&
		!p.Barcode.IsSet() && !p.IsDeleted.IsSet()
}

// Float returns a pointer to f. Convenience for optional amounts.
func Float(f float64) *float64 {
	return &f
}

// Int returns a pointer to n.
func Int(n int) *int {
	return &n
}
