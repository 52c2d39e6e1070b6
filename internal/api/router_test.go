package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
	"github.com/ilramdhan/doorcalc/internal/modules/catalog"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

var interiorID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

type staticDefinitions map[string]*entity.CalculatorDefinition

func (s staticDefinitions) List(context.Context) ([]*entity.CalculatorDefinition, error) {
	out := make([]*entity.CalculatorDefinition, 0, len(s))
	for _, def := range s {
		out = append(out, def)
	}
	return out, nil
}

func (s staticDefinitions) GetByID(_ context.Context, id string) (*entity.CalculatorDefinition, error) {
	return s[id], nil
}

// memCatalog serves a fixed product list and fails every call when err is set.
type memCatalog struct {
	products []*entity.Product
	err      error
}

func (m *memCatalog) Products() repository.ProductRepository     { return m }
func (m *memCatalog) Categories() repository.CategoryRepository { return memCategories{} }

func (m *memCatalog) GetByID(_ context.Context, id uuid.UUID) (*entity.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return p, m.err
		}
	}
	return nil, m.err
}

func (m *memCatalog) GetBySKU(_ context.Context, sku string) (*entity.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memCatalog) List(context.Context, entity.ProductFilter) ([]*entity.Product, error) {
	return m.products, m.err
}

func (m *memCatalog) ListProperties(context.Context, uuid.UUID, int) ([]map[string]any, error) {
	out := make([]map[string]any, len(m.products))
	for i, p := range m.products {
		out[i] = p.Properties
	}
	return out, m.err
}

func (m *memCatalog) Stats(context.Context, *uuid.UUID) (*entity.ProductStats, error) {
	return &entity.ProductStats{TotalCount: int64(len(m.products))}, m.err
}

func (m *memCatalog) CreateBatch(context.Context, []*entity.Product) (int64, error) { return 0, nil }
func (m *memCatalog) Count(context.Context) (int64, error)                         { return int64(len(m.products)), nil }

type memCategories struct{}

func (memCategories) List(context.Context) ([]*entity.Category, error) {
	return []*entity.Category{{ID: interiorID, Name: "Interior"}}, nil
}

func (memCategories) CreateBatch(context.Context, []*entity.Category) (int64, error) { return 0, nil }

func testDefinition() *entity.CalculatorDefinition {
	return &entity.CalculatorDefinition{
		ID:   "door",
		Name: "Door",
		Variables: []entity.VariableDefinition{
			{ID: "quantity", Type: entity.TypeNumber, DefaultValue: 1, Validation: []entity.ValidationRule{
				{Type: entity.RuleMin, Value: 1, Message: "at least one"},
			}},
		},
		Formulas: []entity.Formula{
			{ID: "unit", Expression: `getPrice("SKU-001") * 1.2`},
			{ID: "total", Expression: "unit * quantity"},
		},
	}
}

func newTestServer(t *testing.T, repo repository.CatalogRepository) Server {
	t.Helper()
	s := Server{
		Calculators: staticDefinitions{"door": testDefinition()},
		Calculator:  config.CalculatorConfig{Timeout: time.Second, Workers: 1, BatchWorkers: 2},
		Logger:      logger.Discard(),
	}
	if repo != nil {
		s.Catalog = catalog.NewDataSource(repo, catalog.WithLogger(logger.Discard()))
	}
	return s
}

func doorCatalog() *memCatalog {
	return &memCatalog{products: []*entity.Product{{
		ID: uuid.New(), SKU: "SKU-001", Name: "Oak door", CategoryID: interiorID, BasePrice: 4500,
		Properties: map[string]any{"material": "oak"},
	}}}
}

func do(t *testing.T, s Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := NewApp(s).Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	s.Ping = func(context.Context) error { return errors.New("connection refused") }
	code, body = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestCalculators(t *testing.T) {
	s := newTestServer(t, doorCatalog())

	code, body := do(t, s, http.MethodGet, "/api/v1/calculators", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["total"])

	code, body = do(t, s, http.MethodGet, "/api/v1/calculators/door", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "door", body["id"])

	code, body = do(t, s, http.MethodGet, "/api/v1/calculators/window", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "calculator not found", body["error"])
}

func TestCalculate(t *testing.T) {
	s := newTestServer(t, doorCatalog())

	code, body := do(t, s, http.MethodPost, "/api/v1/calculators/door/calculate", map[string]any{
		"values": map[string]any{"quantity": 3},
	})
	require.Equal(t, http.StatusOK, code, body)
	results := body["results"].(map[string]any)
	assert.Equal(t, 5400.0, results["unit"])
	assert.Equal(t, 16200.0, results["total"])
}

func TestCalculate_ValidationFailure(t *testing.T) {
	s := newTestServer(t, doorCatalog())

	code, body := do(t, s, http.MethodPost, "/api/v1/calculators/door/calculate", map[string]any{
		"values": map[string]any{"quantity": 0},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	errs := body["errors"].(map[string]any)
	assert.Equal(t, "at least one", errs["quantity"])
}

func TestCalculate_CatalogUnavailable(t *testing.T) {
	s := newTestServer(t, &memCatalog{err: errors.New("connection refused")})

	code, body := do(t, s, http.MethodPost, "/api/v1/calculators/door/calculate", map[string]any{})
	require.Equal(t, http.StatusOK, code)
	results := body["results"].(map[string]any)
	assert.Equal(t, "Ошибка", results["unit"])
	assert.Equal(t, "Ошибка", results["total"])
}

func TestCalculate_BadBody(t *testing.T) {
	s := newTestServer(t, doorCatalog())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calculators/door/calculate", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := NewApp(s).Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatch(t *testing.T) {
	s := newTestServer(t, doorCatalog())

	code, body := do(t, s, http.MethodPost, "/api/v1/calculators/door/batch", map[string]any{
		"rows": []map[string]any{{"quantity": 1}, {"quantity": 0}, {"quantity": 2}},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 3.0, body["processed"])
	assert.Equal(t, 1.0, body["failed"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 3)
	third := rows[2].(map[string]any)["snapshot"].(map[string]any)["results"].(map[string]any)
	assert.Equal(t, 10800.0, third["total"])
}

func TestEvaluate(t *testing.T) {
	s := newTestServer(t, doorCatalog())

	tests := []struct {
		name string
		body map[string]any
		code int
		want any
	}{
		{"arithmetic", map[string]any{"expression": "basePrice * quantity", "variables": map[string]any{"basePrice": 1000, "quantity": 5}}, http.StatusOK, 5000.0},
		{"discount", map[string]any{"expression": "if(quantity > 10, basePrice * 0.9, basePrice)", "variables": map[string]any{"basePrice": 1000, "quantity": 12}}, http.StatusOK, 900.0},
		{"catalog", map[string]any{"expression": `getPrice("SKU-001") * 1.2`}, http.StatusOK, 5400.0},
		{"syntax error", map[string]any{"expression": "1 +"}, http.StatusBadRequest, nil},
		{"unsafe", map[string]any{"expression": `eval("2")`}, http.StatusBadRequest, nil},
		{"unknown identifier", map[string]any{"expression": "nope * 2"}, http.StatusUnprocessableEntity, nil},
		{"missing expression", map[string]any{}, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, s, http.MethodPost, "/api/v1/expressions/evaluate", tt.body)
			assert.Equal(t, tt.code, code, body)
			if tt.want != nil {
				assert.Equal(t, tt.want, body["result"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, doorCatalog())

	code, body := do(t, s, http.MethodGet, "/api/v1/catalog/products/SKU-001", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4500.0, body["base_price"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/catalog/products/SKU-404", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, s, http.MethodGet, "/api/v1/catalog/stats?category_id="+interiorID.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["total_count"])

	code, body = do(t, s, http.MethodGet, "/api/v1/catalog/categories", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, body = do(t, s, http.MethodGet, "/api/v1/catalog/categories/"+interiorID.String()+"/properties", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, _ = do(t, s, http.MethodPost, "/api/v1/catalog/cache/clear", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestCatalogRoutes_Errors(t *testing.T) {
	code, _ := do(t, newTestServer(t, nil), http.MethodGet, "/api/v1/catalog/products/SKU-001", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	failing := newTestServer(t, &memCatalog{err: errors.New("connection refused")})
	code, _ = do(t, failing, http.MethodGet, "/api/v1/catalog/products/SKU-001", nil)
	assert.Equal(t, http.StatusBadGateway, code)
}
