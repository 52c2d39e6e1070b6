package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/pkg/formula"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

const doorYAML = `id: door
name: Door
variables:
  - id: width
    name: Width
    type: number
    default: 800
    validation:
      - type: min
        value: 600
        message: too narrow
  - id: height
    name: Height
    type: number
    default: 2000
  - id: sku
    name: Leaf
    type: string
    default: SKU-001
formulas:
  - id: area
    name: Area
    expression: width * height / 1000000
  - id: price
    name: Price
    expression: round(area * getPrice(sku), 2)
elements:
  - id: retail
    type: formula
    label: Retail
    config:
      formula: price * 1.2
`

func setupTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	app := &App{
		Config: &config.Config{Calculator: config.CalculatorConfig{Timeout: time.Second, Workers: 1}},
		Logger: logger.Discard(),
		Out:    out,
		Err:    &bytes.Buffer{},
		Functions: formula.Library{
			"getPrice": func(_ context.Context, args []any) (any, error) {
				if len(args) == 1 && args[0] == "SKU-001" {
					return 4500.0, nil
				}
				return nil, fmt.Errorf("unknown sku %v", args)
			},
		},
	}
	return app, out
}

func writeDefinition(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "door.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doorYAML), 0o644))
	return path
}

func execute(app *App, args ...string) error {
	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	return root.ExecuteContext(context.Background())
}

func TestEvalCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"arithmetic", []string{"eval", "basePrice * quantity", "--var", "basePrice=1000", "--var", "quantity=5"}, "5000\n"},
		{"discount", []string{"eval", "if(quantity > 10, basePrice * 0.9, basePrice)", "--var", "basePrice=1000", "--var", "quantity=12"}, "900\n"},
		{"catalog", []string{"eval", `getPrice("SKU-001") * 1.2`}, "5400\n"},
		{"string", []string{"eval", `concat("door-", sku)`, "--var", "sku=DOOR-OAK-001"}, "door-DOOR-OAK-001\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, out := setupTestApp(t)
			require.NoError(t, execute(app, tt.args...))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestEvalCmd_JSON(t *testing.T) {
	app, out := setupTestApp(t)
	require.NoError(t, execute(app, "eval", "round(2.345, 2)", "--json"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, 2.35, body["result"])
}

func TestEvalCmd_Errors(t *testing.T) {
	app, _ := setupTestApp(t)

	err := execute(app, "eval", "1 +")
	var syn *formula.SyntaxError
	assert.ErrorAs(t, err, &syn)

	assert.ErrorIs(t, execute(app, "eval", `eval("2")`), formula.ErrUnsafeExpression)
	assert.ErrorContains(t, execute(app, "eval", "x", "--var", "novalue"), "expected name=value")
}

func TestRunCmd(t *testing.T) {
	app, out := setupTestApp(t)
	path := writeDefinition(t)

	require.NoError(t, execute(app, "run", path, "--json"))

	var snap struct {
		Values  map[string]any `json:"values"`
		Results map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, 1.6, snap.Results["area"])
	assert.Equal(t, 7200.0, snap.Results["price"])
	assert.Equal(t, 8640.0, snap.Results["retail"])
	assert.Equal(t, "SKU-001", snap.Values["sku"])
}

func TestRunCmd_SetValues(t *testing.T) {
	app, out := setupTestApp(t)
	path := writeDefinition(t)

	require.NoError(t, execute(app, "run", path, "--set", "width=1000"))
	text := out.String()
	assert.Contains(t, text, "Door (door)")
	assert.Contains(t, text, "9000")
	assert.Contains(t, text, "10800")
}

func TestRunCmd_Failures(t *testing.T) {
	app, out := setupTestApp(t)
	path := writeDefinition(t)

	err := execute(app, "run", path, "--set", "width=100", "--set", "sku=SKU-404")
	assert.ErrorIs(t, err, ErrCalculationFailed)

	text := out.String()
	assert.Contains(t, text, "too narrow")
	assert.Contains(t, text, "Ошибка")
	assert.Contains(t, text, "price: calculation error (formula price)")
}

func TestRunCmd_MissingFile(t *testing.T) {
	app, _ := setupTestApp(t)
	assert.Error(t, execute(app, "run", filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestDepsCmd(t *testing.T) {
	app, out := setupTestApp(t)
	path := writeDefinition(t)

	require.NoError(t, execute(app, "deps", path, "--json"))

	var body struct {
		Order    []string `json:"order"`
		Formulas []struct {
			ID           string   `json:"id"`
			Dependencies []string `json:"dependencies"`
		} `json:"formulas"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, []string{"area", "price", "retail"}, body.Order)
	assert.Equal(t, []string{"width", "height"}, body.Formulas[0].Dependencies)
	assert.Equal(t, []string{"area", "sku"}, body.Formulas[1].Dependencies)
}

func TestDepsCmd_Text(t *testing.T) {
	app, out := setupTestApp(t)
	require.NoError(t, execute(app, "deps", writeDefinition(t)))
	assert.Contains(t, out.String(), " 1. area <- width, height")
	assert.Contains(t, out.String(), " 3. retail <- price")
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"width=800", "sku=DOOR-OAK-001", "glass=true", "ratio=0.5", "note="})
	require.NoError(t, err)
	assert.Equal(t, 800.0, values["width"])
	assert.Equal(t, "DOOR-OAK-001", values["sku"])
	assert.Equal(t, true, values["glass"])
	assert.Equal(t, 0.5, values["ratio"])
	assert.Nil(t, values["note"])

	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}
