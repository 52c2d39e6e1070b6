package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Product represents a catalog product
type Product struct {
	ID            uuid.UUID      `json:"id"`
	SKU           string         `json:"sku"`
	Name          string         `json:"name"`
	CategoryID    uuid.UUID      `json:"category_id"`
	BasePrice     float64        `json:"base_price"`
	StockQuantity int64          `json:"stock_quantity"`
	Properties    map[string]any `json:"properties_data"` // free-form attributes stored as JSONB
	Images        []string       `json:"images"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PropertiesJSON returns properties as JSON bytes
func (p *Product) PropertiesJSON() ([]byte, error) {
	if p.Properties == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Properties)
}

// Category represents a node in the catalog category tree
type Category struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	ParentID      *uuid.UUID  `json:"parent_id,omitempty"`
	ProductsCount int64       `json:"products_count"`
	Subcategories []*Category `json:"subcategories"`
}

// ProductFilter narrows a product search. CategoryID and the price bounds are
// applied by the repository, Properties in memory.
type ProductFilter struct {
	CategoryID *uuid.UUID     `json:"category_id,omitempty"`
	PriceMin   *float64       `json:"price_min,omitempty"`
	PriceMax   *float64       `json:"price_max,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
}

// ProductStats aggregates base prices over a product set
type ProductStats struct {
	TotalCount int64   `json:"total_count"`
	AvgPrice   float64 `json:"avg_price"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	TotalValue float64 `json:"total_value"`
}

// CategoryProperty describes a property key observed on products of a category
type CategoryProperty struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Values []any  `json:"values"`
}
