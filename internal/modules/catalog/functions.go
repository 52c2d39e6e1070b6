package catalog

import (
	"context"
	"fmt"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// Functions returns the catalog-backed formula functions
func (d *DataSource) Functions() formula.Library {
	return formula.Library{
		"getPrice": func(ctx context.Context, args []any) (any, error) {
			id, err := identifierArg(args, 1)
			if err != nil {
				return nil, err
			}
			return d.GetProductPrice(ctx, id)
		},
		"getProperty": func(ctx context.Context, args []any) (any, error) {
			id, err := identifierArg(args, 2)
			if err != nil {
				return nil, err
			}
			return d.GetProductProperty(ctx, id, formula.ToString(args[1]))
		},
		"filterProducts": func(ctx context.Context, args []any) (any, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, fmt.Errorf("%w: expected 1 or 2 arguments, got %d", formula.ErrArgument, len(args))
			}
			filters := map[string]any{}
			if len(args) == 2 {
				m, ok := args[1].(map[string]any)
				if !ok && args[1] != nil {
					return nil, fmt.Errorf("%w: filters must be an object", formula.ErrArgument)
				}
				for k, v := range m {
					filters[k] = v
				}
			}
			if _, set := filters["categoryId"]; !set && args[0] != nil {
				filters["categoryId"] = formula.ToString(args[0])
			}
			products, err := d.FindProducts(ctx, FilterFromArgs(filters))
			if err != nil {
				return nil, err
			}
			out := make([]any, len(products))
			for i, p := range products {
				out[i] = ProductValue(p)
			}
			return out, nil
		},
		"findPrices": func(ctx context.Context, args []any) (any, error) {
			products, err := d.findByArgs(ctx, args)
			if err != nil {
				return nil, err
			}
			prices := make([]any, len(products))
			for i, p := range products {
				prices[i] = p.BasePrice
			}
			return prices, nil
		},
		"countProducts": func(ctx context.Context, args []any) (any, error) {
			products, err := d.findByArgs(ctx, args)
			if err != nil {
				return nil, err
			}
			return float64(len(products)), nil
		},
		"avgPrice": d.statFunc(func(s *entity.ProductStats) float64 { return s.AvgPrice }),
		"minPrice": d.statFunc(func(s *entity.ProductStats) float64 { return s.MinPrice }),
		"maxPrice": d.statFunc(func(s *entity.ProductStats) float64 { return s.MaxPrice }),
	}
}

func identifierArg(args []any, n int) (string, error) {
	if len(args) != n {
		return "", fmt.Errorf("%w: expected %d argument(s), got %d", formula.ErrArgument, n, len(args))
	}
	if args[0] == nil {
		return "", fmt.Errorf("%w: product identifier is null", formula.ErrArgument)
	}
	return normalizeIdentifier(formula.ToString(args[0])), nil
}

func (d *DataSource) findByArgs(ctx context.Context, args []any) ([]*entity.Product, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("%w: expected at most 1 argument, got %d", formula.ErrArgument, len(args))
	}
	filters := map[string]any{}
	if len(args) == 1 && args[0] != nil {
		m, ok := args[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: filters must be an object", formula.ErrArgument)
		}
		filters = m
	}
	return d.FindProducts(ctx, FilterFromArgs(filters))
}

func (d *DataSource) statFunc(pick func(*entity.ProductStats) float64) formula.Func {
	return func(ctx context.Context, args []any) (any, error) {
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: expected at most 1 argument, got %d", formula.ErrArgument, len(args))
		}
		categoryID := ""
		if len(args) == 1 && args[0] != nil {
			categoryID = formula.ToString(args[0])
		}
		stats, err := d.GetProductStats(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		return pick(stats), nil
	}
}

// ProductValue renders a product as a formula object
func ProductValue(p *entity.Product) map[string]any {
	images := make([]any, len(p.Images))
	for i, img := range p.Images {
		images[i] = img
	}
	props := p.Properties
	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{
		"id":              p.ID.String(),
		"sku":             p.SKU,
		"name":            p.Name,
		"base_price":      p.BasePrice,
		"stock_quantity":  float64(p.StockQuantity),
		"properties_data": formula.Normalize(props),
		"images":          images,
	}
}
