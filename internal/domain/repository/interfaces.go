package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
)

// ProductRepository defines the interface for catalog product operations
type ProductRepository interface {
	// GetByID retrieves a product by ID, nil if absent
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Product, error)
	// GetBySKU retrieves a product by SKU, nil if absent
	GetBySKU(ctx context.Context, sku string) (*entity.Product, error)
	// List retrieves products by category and price range, newest first
	List(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error)
	// ListProperties retrieves the property maps of up to limit products in a category
	ListProperties(ctx context.Context, categoryID uuid.UUID, limit int) ([]map[string]any, error)
	// Stats aggregates base prices, optionally scoped to a category
	Stats(ctx context.Context, categoryID *uuid.UUID) (*entity.ProductStats, error)
	// CreateBatch creates multiple products using COPY protocol
	CreateBatch(ctx context.Context, products []*entity.Product) (int64, error)
	// Count returns the total count of products
	Count(ctx context.Context) (int64, error)
}

// CategoryRepository defines the interface for catalog category operations
type CategoryRepository interface {
	// List retrieves all categories ordered by name, with product counts
	List(ctx context.Context) ([]*entity.Category, error)
	// CreateBatch creates multiple categories
	CreateBatch(ctx context.Context, categories []*entity.Category) (int64, error)
}

// CatalogRepository groups the repositories backing the catalog data source
type CatalogRepository interface {
	Products() ProductRepository
	Categories() CategoryRepository
}

// CalculatorRepository defines the interface for calculator definition lookup
type CalculatorRepository interface {
	// List retrieves all calculator definitions ordered by ID
	List(ctx context.Context) ([]*entity.CalculatorDefinition, error)
	// GetByID retrieves a definition by ID, nil if absent
	GetByID(ctx context.Context, id string) (*entity.CalculatorDefinition, error)
}
