package formula

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Func is a function callable from expressions. Arguments arrive evaluated and normalized.
type Func func(ctx context.Context, args []any) (any, error)

// Library maps function names to implementations.
type Library map[string]Func

// Clone returns a shallow copy of the library.
func (l Library) Clone() Library {
	out := make(Library, len(l))
	for name, fn := range l {
		out[name] = fn
	}
	return out
}

// Merge returns a copy of l with the functions of other added. Functions in
// other replace same-named functions in l.
func (l Library) Merge(other Library) Library {
	out := l.Clone()
	for name, fn := range other {
		out[name] = fn
	}
	return out
}

// Names returns the function names in lexical order.
func (l Library) Names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a fresh copy of the built-in function library.
func Builtins() Library {
	return builtins.Clone()
}

var builtins = Library{
	// arithmetic
	"add":      binaryMath(func(a, b float64) float64 { return a + b }),
	"subtract": binaryMath(func(a, b float64) float64 { return a - b }),
	"multiply": binaryMath(func(a, b float64) float64 { return a * b }),
	"divide": binaryMath(func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return a / b
	}),
	"power": binaryMath(math.Pow),
	"sqrt":  unaryMath(math.Sqrt),

	"sin":   unaryMath(math.Sin),
	"cos":   unaryMath(math.Cos),
	"tan":   unaryMath(math.Tan),
	"log":   unaryMath(math.Log),
	"log10": unaryMath(math.Log10),

	"round": fnRound,
	"ceil":  unaryMath(math.Ceil),
	"floor": unaryMath(math.Floor),
	"abs":   unaryMath(math.Abs),
	"sign":  unaryMath(sign),

	"min": fnMin,
	"max": fnMax,
	"avg": fnAvg,
	"sum": fnSum,

	"if": fnIf,

	"concat": fnConcat,
	"length": fnLength,
	"upper":  stringFunc(strings.ToUpper),
	"lower":  stringFunc(strings.ToLower),

	"count": fnCount,
	"first": fnFirst,
	"last":  fnLast,

	"now":   fnNow,
	"year":  dateFunc(func(t time.Time) float64 { return float64(t.Year()) }),
	"month": dateFunc(func(t time.Time) float64 { return float64(t.Month()) }),
	"day":   dateFunc(func(t time.Time) float64 { return float64(t.Day()) }),

	"pmt":    fnPmt,
	"random": fnRandom,
	"custom": fnCustom,
}

func arity(args []any, n int) error {
	if len(args) != n {
		return argError("expected %d argument(s), got %d", n, len(args))
	}
	return nil
}

func number(args []any, i int) (float64, error) {
	x, ok := ToNumber(args[i])
	if !ok {
		return 0, argError("argument %d: expected number, got %s", i+1, KindOf(args[i]))
	}
	return x, nil
}

func unaryMath(f func(float64) float64) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		x, err := number(args, 0)
		if err != nil {
			return nil, err
		}
		return f(x), nil
	}
}

func binaryMath(f func(a, b float64) float64) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		a, err := number(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := number(args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x
}

// fnRound rounds half away from zero at the given number of decimals. The
// float is first converted to its shortest decimal form, so round(2.345, 2) is 2.35.
func fnRound(_ context.Context, args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, argError("expected 1 or 2 arguments, got %d", len(args))
	}
	x, err := number(args, 0)
	if err != nil {
		return nil, err
	}
	places := 0.0
	if len(args) == 2 {
		if places, err = number(args, 1); err != nil {
			return nil, err
		}
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x, nil
	}
	rounded, _ := decimal.NewFromFloat(x).Round(int32(places)).Float64()
	return rounded, nil
}

func numbers(args []any) ([]float64, error) {
	flat := flatten(args)
	out := make([]float64, 0, len(flat))
	for i, v := range flat {
		x, ok := ToNumber(v)
		if !ok {
			return nil, argError("value %d: expected number, got %s", i+1, KindOf(v))
		}
		out = append(out, x)
	}
	return out, nil
}

func fnMin(_ context.Context, args []any) (any, error) {
	xs, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, argError("min of no values")
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m, nil
}

func fnMax(_ context.Context, args []any) (any, error) {
	xs, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, argError("max of no values")
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m, nil
}

func fnSum(_ context.Context, args []any) (any, error) {
	xs, err := numbers(args)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total, nil
}

func fnAvg(_ context.Context, args []any) (any, error) {
	xs, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, argError("avg of no values")
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs)), nil
}

// fnIf is the eager form used when the library is called directly. The
// evaluator short-circuits if() itself.
func fnIf(_ context.Context, args []any) (any, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, argError("expected 2 or 3 arguments, got %d", len(args))
	}
	if Truthy(args[0]) {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return nil, nil
}

func fnConcat(_ context.Context, args []any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		if a == nil {
			continue
		}
		b.WriteString(ToString(a))
	}
	return b.String(), nil
}

func fnLength(_ context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case nil:
		return 0.0, nil
	case []any:
		return float64(len(v)), nil
	case string:
		return float64(utf8.RuneCountInString(v)), nil
	default:
		return float64(utf8.RuneCountInString(ToString(v))), nil
	}
}

func stringFunc(f func(string) string) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		if args[0] == nil {
			return "", nil
		}
		return f(ToString(args[0])), nil
	}
}

func array(args []any) ([]any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	}
	return nil, argError("expected array, got %s", KindOf(args[0]))
}

func fnCount(_ context.Context, args []any) (any, error) {
	arr, err := array(args)
	if err != nil {
		return nil, err
	}
	return float64(len(arr)), nil
}

func fnFirst(_ context.Context, args []any) (any, error) {
	arr, err := array(args)
	if err != nil || len(arr) == 0 {
		return nil, err
	}
	return arr[0], nil
}

func fnLast(_ context.Context, args []any) (any, error) {
	arr, err := array(args)
	if err != nil || len(arr) == 0 {
		return nil, err
	}
	return arr[len(arr)-1], nil
}

func fnNow(_ context.Context, args []any) (any, error) {
	if err := arity(args, 0); err != nil {
		return nil, err
	}
	return time.Now(), nil
}

func dateFunc(f func(time.Time) float64) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		t, ok := ToTime(args[0])
		if !ok {
			return nil, argError("expected date, got %s", KindOf(args[0]))
		}
		return f(t), nil
	}
}

// fnPmt is the payment on a loan of pv over nper periods at a fixed rate.
func fnPmt(_ context.Context, args []any) (any, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	vals := make([]float64, 3)
	for i := range vals {
		x, err := number(args, i)
		if err != nil {
			return nil, err
		}
		vals[i] = x
	}
	rate, nper, pv := vals[0], vals[1], vals[2]
	if rate == 0 {
		return -pv / nper, nil
	}
	growth := math.Pow(1+rate, nper)
	return -pv * (rate * growth) / (growth - 1), nil
}

func fnRandom(_ context.Context, args []any) (any, error) {
	if err := arity(args, 0); err != nil {
		return nil, err
	}
	return rand.Float64(), nil
}

func fnCustom(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return nil, argError("expected function name")
	}
	return nil, fmt.Errorf("%w: custom function %s not found", ErrUnknownFunction, ToString(args[0]))
}
