package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
)

// categoryRepo implements repository.CategoryRepository
type categoryRepo struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(pool *pgxpool.Pool) repository.CategoryRepository {
	return &categoryRepo{pool: pool}
}

func (r *categoryRepo) List(ctx context.Context) ([]*entity.Category, error) {
	query := `
		SELECT c.id, c.name, c.parent_id, COUNT(p.id)
		FROM catalog_categories c
		LEFT JOIN products p ON p.catalog_category_id = c.id
		GROUP BY c.id, c.name, c.parent_id
		ORDER BY c.name ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*entity.Category
	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.ProductsCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

// CreateBatch inserts categories and their subcategories using COPY protocol
func (r *categoryRepo) CreateBatch(ctx context.Context, categories []*entity.Category) (int64, error) {
	rows := make([][]any, 0, len(categories))
	added := make(map[uuid.UUID]bool, len(categories))
	// parents are copied before their children
	var visit func(c *entity.Category, parent *uuid.UUID)
	visit = func(c *entity.Category, parent *uuid.UUID) {
		if added[c.ID] {
			return
		}
		added[c.ID] = true
		parentID := c.ParentID
		if parentID == nil {
			parentID = parent
		}
		rows = append(rows, []any{c.ID, c.Name, parentID})
		for _, sub := range c.Subcategories {
			visit(sub, &c.ID)
		}
	}
	for _, c := range categories {
		visit(c, nil)
	}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"catalog_categories"},
		[]string{"id", "name", "parent_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy categories: %w", err)
	}
	return copyCount, nil
}

// catalogRepo implements repository.CatalogRepository
type catalogRepo struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
}

// NewCatalogRepository creates the Postgres-backed catalog repository
func NewCatalogRepository(pool *pgxpool.Pool) repository.CatalogRepository {
	return &catalogRepo{
		products:   NewProductRepository(pool),
		categories: NewCategoryRepository(pool),
	}
}

func (r *catalogRepo) Products() repository.ProductRepository     { return r.products }
func (r *catalogRepo) Categories() repository.CategoryRepository { return r.categories }
