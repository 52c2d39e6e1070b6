package formula

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, source string, env map[string]any) (any, error) {
	t.Helper()
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(Builtins()).Eval(context.Background(), prog, MapEnv(env))
}

func TestEvaluator_Operators(t *testing.T) {
	env := map[string]any{
		"price": 1000.0,
		"qty":   3,
		"name":  "Door",
		"yes":   true,
		"none":  nil,
	}

	tests := []struct {
		source string
		want   any
	}{
		{"price * qty", 3000.0},
		{"price / 4 - 50", 200.0},
		{"10 % 4", 2.0},
		{"-price + 1", -999.0},
		{"+'12'", 12.0},
		{"name + ' ' + qty", "Door 3"},
		{"'#' + 1.5", "#1.5"},
		{"qty > 2 && price >= 1000", true},
		{"qty < 2 || none", false},
		{"!yes", false},
		{"!none", true},
		{"1 == '1'", true},
		{"1 === '1'", false},
		{"1 !== 1", false},
		{"null == 0", false},
		{"none === null", true},
		{"'abc' < 'abd'", true},
		{"[1, 2] === [1, 2]", true},
		{"yes ? 'a' : 'b'", "a"},
		{"price > 500 ? price * 0.9 : price", 900.0},
		{"yes && 'x'", true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := eval(t, tt.source, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_IEEEDivision(t *testing.T) {
	got, err := eval(t, "1 / 0", nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.(float64), 1))

	got, err = eval(t, "0 / 0", nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.(float64)))
}

func TestEvaluator_TypeErrors(t *testing.T) {
	for _, source := range []string{
		"[1] * 2",
		"'abc' - 1",
		"{a: 1} > 1",
		"-[1]",
	} {
		t.Run(source, func(t *testing.T) {
			_, err := eval(t, source, nil)
			assert.ErrorIs(t, err, ErrType)
		})
	}
}

func TestEvaluator_ShortCircuit(t *testing.T) {
	calls := 0
	lib := Builtins().Merge(Library{
		"touch": func(_ context.Context, _ []any) (any, error) {
			calls++
			return true, nil
		},
	})
	ev := NewEvaluator(lib)

	for _, source := range []string{
		"false && touch()",
		"true || touch()",
		"if(1 > 2, touch(), 0)",
		"1 > 2 ? touch() : 0",
	} {
		prog, err := Parse(source)
		require.NoError(t, err)
		_, err = ev.Eval(context.Background(), prog, MapEnv{})
		require.NoError(t, err)
	}

	assert.Equal(t, 0, calls)
}

func TestEvaluator_IfWithoutElse(t *testing.T) {
	got, err := eval(t, "if(false, 1)", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvaluator_UnknownFunction(t *testing.T) {
	_, err := eval(t, "frobnicate(1)", nil)
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = eval(t, `custom("discount", 1)`, nil)
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestEvaluator_ScreensStringValues(t *testing.T) {
	_, err := eval(t, "note", map[string]any{"note": `eval("alert(1)")`})
	assert.ErrorIs(t, err, ErrUnsafeExpression)

	_, err = eval(t, "first(items)", map[string]any{"items": []any{"require('fs')"}})
	assert.ErrorIs(t, err, ErrUnsafeExpression)

	_, err = eval(t, `concat("ev", "al(1)")`, nil)
	assert.ErrorIs(t, err, ErrUnsafeExpression)

	_, err = eval(t, "note", map[string]any{"note": "xeval(1)"})
	assert.ErrorIs(t, err, ErrUnsafeExpression)

	_, err = eval(t, `upper(note)`, map[string]any{"note": "_require (x)"})
	assert.ErrorIs(t, err, ErrUnsafeExpression)
}

func TestEvaluator_FunctionErrorWrapsCause(t *testing.T) {
	lookupErr := errors.New("connection refused")
	lib := Builtins().Merge(Library{
		"getPrice": func(_ context.Context, _ []any) (any, error) {
			return nil, lookupErr
		},
	})
	prog, err := Parse(`getPrice("SKU-001") * 1.2`)
	require.NoError(t, err)

	_, err = NewEvaluator(lib).Eval(context.Background(), prog, MapEnv{})

	require.Error(t, err)
	assert.ErrorIs(t, err, lookupErr)
	assert.Contains(t, err.Error(), "getPrice()")
}

func TestEvaluator_EnvFunc(t *testing.T) {
	lookups := 0
	env := EnvFunc(func(_ context.Context, name string) (any, bool, error) {
		lookups++
		if name == "basePrice" {
			return 4500.0, true, nil
		}
		return nil, false, nil
	})
	prog, err := Parse("basePrice * 1.2")
	require.NoError(t, err)

	got, err := NewEvaluator(Builtins()).Eval(context.Background(), prog, env)

	require.NoError(t, err)
	assert.InDelta(t, 5400.0, got, 1e-9)
	assert.Equal(t, 1, lookups)
}

func TestEvaluator_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog, err := Parse("a + 1")
	require.NoError(t, err)

	_, err = NewEvaluator(Builtins()).Eval(ctx, prog, MapEnv{"a": 1})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluator_DateComparison(t *testing.T) {
	env := map[string]any{
		"delivery": time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}

	got, err := eval(t, "delivery > '2024-03-01'", env)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = eval(t, "month(delivery) + day('2024-02-29')", env)
	require.NoError(t, err)
	assert.Equal(t, 32.0, got)
}

func TestJSONSafe(t *testing.T) {
	got := JSONSafe(map[string]any{
		"a": math.Inf(1),
		"b": []any{1.0, math.NaN()},
		"c": "ok",
	})

	assert.Equal(t, map[string]any{"a": nil, "b": []any{1.0, nil}, "c": "ok"}, got)
}

func TestNormalize(t *testing.T) {
	type dims struct{ W int }
	assert.Equal(t, 5.0, Normalize(5))
	assert.Equal(t, []any{1.0, 2.0}, Normalize([]int{1, 2}))
	assert.Equal(t, map[string]any{"w": 800.0}, Normalize(map[string]int{"w": 800}))
	assert.Equal(t, dims{W: 1}, Normalize(dims{W: 1}))
}
