package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
)

const defaultListLimit = 100

const productColumns = `
	p.id, p.sku, p.name, p.catalog_category_id, p.base_price, p.stock_quantity, p.properties_data,
	COALESCE((SELECT array_agg(i.url ORDER BY i.sort_order) FROM product_images i WHERE i.product_id = p.id), '{}'),
	p.created_at, p.updated_at`

// productRepo implements repository.ProductRepository
type productRepo struct {
	pool *pgxpool.Pool
}

// NewProductRepository creates a new product repository
func NewProductRepository(pool *pgxpool.Pool) repository.ProductRepository {
	return &productRepo{pool: pool}
}

func scanProduct(row pgx.Row) (*entity.Product, error) {
	var p entity.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.BasePrice, &p.StockQuantity, &p.Properties,
		&p.Images, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
	return &p, nil
}

func (r *productRepo) getOne(ctx context.Context, where string, arg any) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE ` + where
	p, err := scanProduct(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	return r.getOne(ctx, "p.id = $1", id)
}

func (r *productRepo) GetBySKU(ctx context.Context, sku string) (*entity.Product, error) {
	return r.getOne(ctx, "p.sku = $1", sku)
}

func (r *productRepo) List(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conds = append(conds, fmt.Sprintf("p.catalog_category_id = $%d", len(args)))
	}
	if filter.PriceMin != nil {
		args = append(args, *filter.PriceMin)
		conds = append(conds, fmt.Sprintf("p.base_price >= $%d", len(args)))
	}
	if filter.PriceMax != nil {
		args = append(args, *filter.PriceMax)
		conds = append(conds, fmt.Sprintf("p.base_price <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + productColumns + " FROM products p")
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *productRepo) ListProperties(ctx context.Context, categoryID uuid.UUID, limit int) ([]map[string]any, error) {
	query := `
		SELECT properties_data FROM products
		WHERE catalog_category_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list product properties: %w", err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		var props map[string]any
		if err := rows.Scan(&props); err != nil {
			return nil, fmt.Errorf("failed to scan product properties: %w", err)
		}
		result = append(result, props)
	}
	return result, rows.Err()
}

func (r *productRepo) Stats(ctx context.Context, categoryID *uuid.UUID) (*entity.ProductStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(AVG(base_price), 0),
			COALESCE(MIN(base_price), 0),
			COALESCE(MAX(base_price), 0),
			COALESCE(SUM(base_price), 0)
		FROM products
		WHERE $1::uuid IS NULL OR catalog_category_id = $1
	`
	var s entity.ProductStats
	err := r.pool.QueryRow(ctx, query, categoryID).Scan(&s.TotalCount, &s.AvgPrice, &s.MinPrice, &s.MaxPrice, &s.TotalValue)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate product stats: %w", err)
	}
	return &s, nil
}

// CreateBatch uses PostgreSQL COPY protocol for high-performance bulk inserts
func (r *productRepo) CreateBatch(ctx context.Context, products []*entity.Product) (int64, error) {
	columns := []string{"id", "sku", "name", "catalog_category_id", "base_price", "stock_quantity", "properties_data", "created_at", "updated_at"}

	rows := make([][]any, len(products))
	var images [][]any
	for i, p := range products {
		props, err := p.PropertiesJSON()
		if err != nil {
			return 0, fmt.Errorf("failed to encode properties of %s: %w", p.SKU, err)
		}
		rows[i] = []any{p.ID, p.SKU, p.Name, p.CategoryID, p.BasePrice, p.StockQuantity, props, p.CreatedAt, p.UpdatedAt}
		for order, url := range p.Images {
			images = append(images, []any{p.ID, url, order})
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"products"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy products: %w", err)
	}
	if len(images) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"product_images"}, []string{"product_id", "url", "sort_order"}, pgx.CopyFromRows(images))
		if err != nil {
			return 0, fmt.Errorf("failed to copy product images: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit products: %w", err)
	}

	return copyCount, nil
}

func (r *productRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	return count, err
}
