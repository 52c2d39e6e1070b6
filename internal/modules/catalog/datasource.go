// Package catalog resolves product prices, properties and aggregates for
// formulas, memoizing every lookup for a fixed TTL.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/cache"
)

// ErrLookup wraps every failure of the underlying catalog repository.
var ErrLookup = errors.New("catalog lookup failed")

const (
	DefaultTTL          = 5 * time.Minute
	DefaultLimit        = 100
	propertySampleLimit = 1000
	propertyValueLimit  = 50
)

// DataSource is the catalog collaborator of the formula engine
type DataSource struct {
	repo         repository.CatalogRepository
	cache        cache.Cache
	ttl          time.Duration
	defaultLimit int
	group        singleflight.Group
	logger       *slog.Logger
}

// Option configures a DataSource
type Option func(*DataSource)

// WithCache replaces the in-memory cache
func WithCache(c cache.Cache) Option {
	return func(d *DataSource) { d.cache = c }
}

// WithTTL sets how long lookups stay memoized
func WithTTL(ttl time.Duration) Option {
	return func(d *DataSource) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithDefaultLimit sets the page size used when a filter has no limit
func WithDefaultLimit(n int) Option {
	return func(d *DataSource) {
		if n > 0 {
			d.defaultLimit = n
		}
	}
}

// WithLogger sets the logger used for lookup failures
func WithLogger(l *slog.Logger) Option {
	return func(d *DataSource) { d.logger = l }
}

// NewDataSource creates a new catalog data source
func NewDataSource(repo repository.CatalogRepository, opts ...Option) *DataSource {
	d := &DataSource{
		repo:         repo,
		cache:        cache.NewMemory(),
		ttl:          DefaultTTL,
		defaultLimit: DefaultLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// memo returns the cached value for key or loads, caches and returns it.
// Concurrent loads of one key share a single repository call. Loads that
// report cacheable=false are returned but not stored.
func memo[T any](ctx context.Context, d *DataSource, key string, load func(context.Context) (T, bool, error)) (T, error) {
	var out T

	if raw, ok, err := d.cache.Get(ctx, key); err != nil {
		d.logger.Warn("catalog cache read failed", "key", key, "error", err)
	} else if ok {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}

	raw, err, _ := d.group.Do(key, func() (any, error) {
		v, cacheable, err := load(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if cacheable {
			if err := d.cache.Set(ctx, key, encoded, d.ttl); err != nil {
				d.logger.Warn("catalog cache write failed", "key", key, "error", err)
			}
		}
		return encoded, nil
	})
	if err != nil {
		d.logger.Error("catalog lookup failed", "key", key, "error", err)
		return out, fmt.Errorf("%w: %s: %w", ErrLookup, key, err)
	}

	if err := json.Unmarshal(raw.([]byte), &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, nil
}

// GetProduct looks a product up by ID or SKU. A missing product is nil, not an error.
func (d *DataSource) GetProduct(ctx context.Context, identifier string) (*entity.Product, error) {
	return memo(ctx, d, "product_"+identifier, func(ctx context.Context) (*entity.Product, bool, error) {
		products := d.repo.Products()
		if id, err := uuid.Parse(identifier); err == nil {
			p, err := products.GetByID(ctx, id)
			if err != nil || p != nil {
				return p, p != nil, err
			}
		}
		p, err := products.GetBySKU(ctx, identifier)
		return p, p != nil, err
	})
}

// GetProductPrice returns the base price of a product, 0 when it does not exist
func (d *DataSource) GetProductPrice(ctx context.Context, identifier string) (float64, error) {
	p, err := d.GetProduct(ctx, identifier)
	if err != nil || p == nil {
		return 0, err
	}
	return p.BasePrice, nil
}

// GetProductProperty resolves price, name, sku and stock from product
// fields and everything else from its properties. Absent values are nil.
func (d *DataSource) GetProductProperty(ctx context.Context, identifier, key string) (any, error) {
	p, err := d.GetProduct(ctx, identifier)
	if err != nil || p == nil {
		return nil, err
	}
	switch key {
	case "price":
		return p.BasePrice, nil
	case "name":
		return p.Name, nil
	case "sku":
		return p.SKU, nil
	case "stock":
		return float64(p.StockQuantity), nil
	}
	return p.Properties[key], nil
}

// FindProducts lists products matching filter. Category and price bounds are
// applied by the repository, property filters on the returned page.
func (d *DataSource) FindProducts(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error) {
	if filter.Limit <= 0 {
		filter.Limit = d.defaultLimit
	}
	sig, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	return memo(ctx, d, "products_"+string(sig), func(ctx context.Context) ([]*entity.Product, bool, error) {
		products, err := d.repo.Products().List(ctx, filter)
		if err != nil {
			return nil, false, err
		}
		if len(filter.Properties) == 0 {
			return products, true, nil
		}
		matched := make([]*entity.Product, 0, len(products))
		for _, p := range products {
			if matchProperties(p.Properties, filter.Properties) {
				matched = append(matched, p)
			}
		}
		return matched, true, nil
	})
}

// GetProductStats aggregates base prices of all products or of one category
func (d *DataSource) GetProductStats(ctx context.Context, categoryID string) (*entity.ProductStats, error) {
	key := "stats_all"
	var scope *uuid.UUID
	if categoryID != "" {
		id, err := uuid.Parse(categoryID)
		if err != nil {
			return &entity.ProductStats{}, nil
		}
		key = "stats_" + id.String()
		scope = &id
	}

	return memo(ctx, d, key, func(ctx context.Context) (*entity.ProductStats, bool, error) {
		s, err := d.repo.Products().Stats(ctx, scope)
		return s, err == nil, err
	})
}

// GetCategories returns the category tree. Roots and children keep the
// repository's name order.
func (d *DataSource) GetCategories(ctx context.Context) ([]*entity.Category, error) {
	return memo(ctx, d, "categories", func(ctx context.Context) ([]*entity.Category, bool, error) {
		flat, err := d.repo.Categories().List(ctx)
		if err != nil {
			return nil, false, err
		}
		return BuildTree(flat), true, nil
	})
}

// BuildTree links categories to their parents. Categories whose parent is
// unknown become roots.
func BuildTree(flat []*entity.Category) []*entity.Category {
	byID := make(map[uuid.UUID]*entity.Category, len(flat))
	for _, c := range flat {
		c.Subcategories = []*entity.Category{}
		byID[c.ID] = c
	}

	roots := []*entity.Category{}
	for _, c := range flat {
		if c.ParentID != nil {
			if parent, ok := byID[*c.ParentID]; ok && parent != c {
				parent.Subcategories = append(parent.Subcategories, c)
				continue
			}
		}
		roots = append(roots, c)
	}
	return roots
}

// GetCategoryProperties lists the property keys seen on products of a
// category with their detected type and up to 50 distinct values.
func (d *DataSource) GetCategoryProperties(ctx context.Context, categoryID string) ([]entity.CategoryProperty, error) {
	id, err := uuid.Parse(categoryID)
	if err != nil {
		return []entity.CategoryProperty{}, nil
	}

	return memo(ctx, d, "properties_"+id.String(), func(ctx context.Context) ([]entity.CategoryProperty, bool, error) {
		rows, err := d.repo.Products().ListProperties(ctx, id, propertySampleLimit)
		if err != nil {
			return nil, false, err
		}
		return summarizeProperties(rows), true, nil
	})
}

// ClearCache drops every memoized lookup
func (d *DataSource) ClearCache(ctx context.Context) error {
	return d.cache.Clear(ctx)
}

func summarizeProperties(rows []map[string]any) []entity.CategoryProperty {
	type acc struct {
		prop entity.CategoryProperty
		seen map[string]bool
	}
	var order []string
	props := make(map[string]*acc)

	for _, row := range rows {
		for _, key := range sortedKeys(row) {
			value := row[key]
			a, ok := props[key]
			if !ok {
				a = &acc{
					prop: entity.CategoryProperty{Key: key, Name: key, Type: detectType(value), Values: []any{}},
					seen: make(map[string]bool),
				}
				props[key] = a
				order = append(order, key)
			}
			if value == nil || value == "" {
				continue
			}
			sig, err := json.Marshal(value)
			if err != nil || a.seen[string(sig)] {
				continue
			}
			a.seen[string(sig)] = true
			if len(a.prop.Values) < propertyValueLimit {
				a.prop.Values = append(a.prop.Values, value)
			}
		}
	}

	out := make([]entity.CategoryProperty, 0, len(order))
	for _, key := range order {
		out = append(out, props[key].prop)
	}
	return out
}

func detectType(value any) string {
	switch v := value.(type) {
	case bool:
		return "boolean"
	case float64, int, int64, json.Number:
		return "number"
	case string:
		if _, ok := leadingNumber(v); ok {
			return "number"
		}
	}
	return "string"
}

// leadingNumber parses the longest numeric prefix of s, so "2000 mm" reads as 2000.
func leadingNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for i, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || ((r == '-' || r == '+') && i == 0) || r == 'e' || r == 'E' {
			end = i + 1
			continue
		}
		break
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f, true
		}
		end--
	}
	return 0, false
}
