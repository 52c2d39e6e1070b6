package formula

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins_Numeric(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"add(2, 3)", 5},
		{"subtract(2, 3)", -1},
		{"multiply(4, 2.5)", 10},
		{"divide(9, 3)", 3},
		{"divide(7, 0)", 0},
		{"divide(0, 0)", 0},
		{"power(2, 10)", 1024},
		{"sqrt(81)", 9},
		{"round(2.345, 2)", 2.35},
		{"round(-2.5)", -3},
		{"round(2.5)", 3},
		{"round(1234.5678, -2)", 1200},
		{"round(0.125, 2)", 0.13},
		{"ceil(1.2)", 2},
		{"floor(-1.2)", -2},
		{"abs(-4)", 4},
		{"sign(-4)", -1},
		{"sign(0)", 0},
		{"min(3, 1, 2)", 1},
		{"max(3, [7, 1], 2)", 7},
		{"avg(2, 4, 6)", 4},
		{"sum()", 0},
		{"sum([1, 2], 3)", 6},
		{"log10(1000)", 3},
		{"log(1)", 0},
		{"cos(0)", 1},
		{"pmt(0, 12, 1200)", -100},
		{"length('дверь')", 5},
		{"length([1, 2, 3])", 3},
		{"count([])", 0},
		{"year('2024-03-15')", 2024},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := eval(t, tt.source, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBuiltins_Divide(t *testing.T) {
	pairs := [][2]float64{{10, 4}, {-3, 0.5}, {1, 3}, {0, 7}, {5, 0}, {-5, 0}}

	for _, p := range pairs {
		got, err := eval(t, "divide(a, b)", map[string]any{"a": p[0], "b": p[1]})
		require.NoError(t, err)
		if p[1] == 0 {
			assert.Equal(t, 0.0, got)
			continue
		}
		assert.Equal(t, p[0]/p[1], got)
	}
}

func TestBuiltins_Pmt(t *testing.T) {
	got, err := eval(t, "pmt(0.01, 12, 10000)", nil)
	require.NoError(t, err)
	assert.InDelta(t, -888.4878867834, got, 1e-6)
}

func TestBuiltins_Strings(t *testing.T) {
	tests := []struct {
		source string
		want   any
	}{
		{`concat("Дверь ", width, "x", height)`, "Дверь 800x2000"},
		{`concat("a", null, "b")`, "ab"},
		{`upper("oak")`, "OAK"},
		{`lower("OAK")`, "oak"},
		{`first(["a", "b"])`, "a"},
		{`last(["a", "b"])`, "b"},
		{`first([])`, nil},
		{`if(width > 700, "wide", "narrow")`, "wide"},
	}

	env := map[string]any{"width": 800, "height": 2000}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := eval(t, tt.source, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltins_ArgumentErrors(t *testing.T) {
	for _, source := range []string{
		"sqrt()",
		"divide(1)",
		"round(1, 2, 3)",
		"min()",
		"avg([])",
		"sqrt('wide')",
		"count(5)",
		"year('soon')",
		"now(1)",
	} {
		t.Run(source, func(t *testing.T) {
			_, err := eval(t, source, nil)
			assert.ErrorIs(t, err, ErrArgument)
		})
	}
}

func TestBuiltins_Random(t *testing.T) {
	for i := 0; i < 100; i++ {
		got, err := eval(t, "random()", nil)
		require.NoError(t, err)
		x := got.(float64)
		assert.True(t, x >= 0 && x < 1)
	}
}

func TestBuiltins_RoundNonFinite(t *testing.T) {
	got, err := builtins["round"](context.Background(), []any{math.Inf(1), 2.0})
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.(float64), 1))
}

func TestLibrary_MergeDoesNotMutate(t *testing.T) {
	base := Builtins()
	merged := base.Merge(Library{"sqrt": func(context.Context, []any) (any, error) { return -1.0, nil }})

	got, err := base["sqrt"](context.Background(), []any{4.0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = merged["sqrt"](context.Background(), []any{4.0})
	require.NoError(t, err)
	assert.Equal(t, -1.0, got)
	assert.Contains(t, base.Names(), "pmt")
}
