package model

import "time"

// Category is a field family updated through its own POS call.
// Categories are applied in the order of Categories.
type Category string

const (
	CategoryStock   Category = "stock"
	CategoryPrice   Category = "price"
	CategoryCost    Category = "cost"
	CategoryBarcode Category = "barcode"
	CategoryName    Category = "name"
)

// Categories lists every category in apply order.
var Categories = []Category{CategoryStock, CategoryPrice, CategoryCost, CategoryBarcode, CategoryName}

// Reason tags describe which fields a change record touched.
const (
	ReasonStockPriceCost = "Stock+Price+Cost"
	ReasonStockPrice     = "Stock+Price"
	ReasonStockCost      = "Stock+Cost"
	ReasonPriceCost      = "Price+Cost"
	ReasonCountAddition  = "Count+Addition"
	ReasonCount          = "Count"
	ReasonAddition       = "Addition"
	ReasonPrice          = "Price"
	ReasonCost           = "Cost"
	ReasonBarcode        = "Barcode"
	ReasonName           = "Name"
)

// ChangeRecord is the immutable result of reconciling one product's edits.
type ChangeRecord struct {
	ProductID     string    `json:"productId"`
	ProductName   string    `json:"productName"`
	Date          time.Time `json:"date"`
	Reason        string    `json:"reason"`
	PreviousCount int       `json:"previousCount"`
	CountedValue  *int      `json:"countedValue,omitempty"`
	AddedValue    int       `json:"addedValue"`
	WasteValue    *int      `json:"wasteValue,omitempty"`
	WasteCost     *float64  `json:"wasteCost,omitempty"`
	FinalCount    int       `json:"finalCount"`
	ChangeValue   int       `json:"changeValue"`

	PreviousPrice *float64 `json:"previousPrice,omitempty"`
	NewPrice      *float64 `json:"newPrice,omitempty"`
	PriceChange   *float64 `json:"priceChange,omitempty"`
	PreviousCost  *float64 `json:"previousCost,omitempty"`
	NewCost       *float64 `json:"newCost,omitempty"`
	CostChange    *float64 `json:"costChange,omitempty"`

	PreviousBarcode string `json:"previousBarcode,omitempty"`
	NewBarcode      string `json:"newBarcode,omitempty"`
	PreviousName    string `json:"previousName,omitempty"`
	NewName         string `json:"newName,omitempty"`
}
