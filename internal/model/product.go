package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a stocked item. Quantity never goes negative.
type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int64           `json:"quantity"`
	Category          string          `json:"category"`
	OverrideThreshold *int64          `json:"overrideThreshold,omitempty"`
	LowStockAlertSent bool            `json:"lowStockAlertSent"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// EffectiveThreshold returns the product's override threshold when set, and
// the category default otherwise.
func (p *Product) EffectiveThreshold(category *Category) int64 {
	if p.OverrideThreshold != nil {
		return *p.OverrideThreshold
	}
	return category.DefaultThreshold
}

// IsLowStock reports whether the product's quantity is at or below its
// effective threshold.
func (p *Product) IsLowStock(category *Category) bool {
	return p.Quantity <= p.EffectiveThreshold(category)
}

// CreateProductRequest represents the request payload for creating a product.
type CreateProductRequest struct {
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int64           `json:"quantity"`
	Category          string          `json:"category"`
	OverrideThreshold *int64          `json:"overrideThreshold,omitempty"`
}

// StockUpdateRequest represents a stock-in or stock-out request.
type StockUpdateRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// StockMovement is the outcome of a stock-in or stock-out.
type StockMovement struct {
	Product        *Product `json:"product"`
	Threshold      int64    `json:"threshold"`
	LowStock       bool     `json:"lowStock"`
	AlertPublished bool     `json:"alertPublished"`
}
