package formula

import (
	"context"
	"fmt"
	"math"
)

// Env resolves identifiers during evaluation. ok is false when the name is unknown.
type Env interface {
	Lookup(ctx context.Context, name string) (value any, ok bool, err error)
}

// MapEnv is an Env over a fixed set of values.
type MapEnv map[string]any

// Lookup implements Env.
func (m MapEnv) Lookup(_ context.Context, name string) (any, bool, error) {
	v, ok := m[name]
	if !ok {
		return nil, false, nil
	}
	return Normalize(v), true, nil
}

// EnvFunc adapts a function to Env.
type EnvFunc func(ctx context.Context, name string) (any, bool, error)

// Lookup implements Env.
func (f EnvFunc) Lookup(ctx context.Context, name string) (any, bool, error) {
	return f(ctx, name)
}

// Evaluator walks a parsed expression tree.
type Evaluator struct {
	Functions Library
}

// NewEvaluator creates a new evaluator over the given function library
func NewEvaluator(lib Library) *Evaluator {
	return &Evaluator{Functions: lib}
}

// Eval evaluates prog against env.
func (e *Evaluator) Eval(ctx context.Context, prog *Program, env Env) (any, error) {
	return e.eval(ctx, prog.Root, env)
}

func (e *Evaluator) eval(ctx context.Context, node Node, env Env) (any, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil

	case *Identifier:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok, err := env.Lookup(ctx, n.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s at %s", ErrUnknownIdentifier, n.Name, n.Pos)
		}
		if err := screen(v); err != nil {
			return nil, fmt.Errorf("value of %s: %w", n.Name, err)
		}
		return v, nil

	case *Unary:
		v, err := e.eval(ctx, n.Operand, env)
		if err != nil {
			return nil, err
		}
		return unary(n.Op, v)

	case *Binary:
		return e.binary(ctx, n, env)

	case *Conditional:
		cond, err := e.eval(ctx, n.Cond, env)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(ctx, n.Then, env)
		}
		return e.eval(ctx, n.Else, env)

	case *Call:
		return e.call(ctx, n, env)

	case *ArrayLit:
		out := make([]any, 0, len(n.Items))
		for _, it := range n.Items {
			v, err := e.eval(ctx, it, env)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *ObjectLit:
		out := make(map[string]any, len(n.Keys))
		for i, k := range n.Keys {
			v, err := e.eval(ctx, n.Values[i], env)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported node %T", node)
}

func (e *Evaluator) binary(ctx context.Context, n *Binary, env Env) (any, error) {
	left, err := e.eval(ctx, n.Left, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "&&":
		if !Truthy(left) {
			return false, nil
		}
		right, err := e.eval(ctx, n.Right, env)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	case "||":
		if Truthy(left) {
			return true, nil
		}
		right, err := e.eval(ctx, n.Right, env)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	right, err := e.eval(ctx, n.Right, env)
	if err != nil {
		return nil, err
	}
	return binary(n.Op, left, right)
}

// call dispatches a function call. if() is special-cased so only the chosen
// branch is evaluated.
func (e *Evaluator) call(ctx context.Context, n *Call, env Env) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n.Name == "if" {
		if len(n.Args) < 2 || len(n.Args) > 3 {
			return nil, fmt.Errorf("if(): %w", argError("expected 2 or 3 arguments, got %d", len(n.Args)))
		}
		cond, err := e.eval(ctx, n.Args[0], env)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(ctx, n.Args[1], env)
		}
		if len(n.Args) == 3 {
			return e.eval(ctx, n.Args[2], env)
		}
		return nil, nil
	}

	fn, ok := e.Functions[n.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrUnknownFunction, n.Name, n.Pos)
	}

	args := make([]any, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := e.eval(ctx, a, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	result, err := fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s(): %w", n.Name, err)
	}
	result = Normalize(result)
	if err := screen(result); err != nil {
		return nil, fmt.Errorf("result of %s(): %w", n.Name, err)
	}
	return result, nil
}

// screen applies the unsafe-pattern check to every string inside v.
func screen(v any) error {
	switch t := v.(type) {
	case string:
		return CheckSafe(t)
	case []any:
		for _, item := range t {
			if err := screen(item); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			if err := CheckSafe(k); err != nil {
				return err
			}
			if err := screen(t[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

func unary(op string, v any) (any, error) {
	switch op {
	case "!":
		return !Truthy(v), nil
	case "-", "+":
		x, ok := ToNumber(v)
		if !ok {
			return nil, unaryTypeError(op, v)
		}
		if op == "-" {
			return -x, nil
		}
		return x, nil
	}
	return nil, unaryTypeError(op, v)
}

func binary(op string, a, b any) (any, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	case "===":
		return StrictEqual(a, b), nil
	case "!==":
		return !StrictEqual(a, b), nil
	case "<", "<=", ">", ">=":
		return compareOp(op, a, b)
	case "+":
		_, sa := a.(string)
		_, sb := b.(string)
		if sa || sb {
			return ToString(a) + ToString(b), nil
		}
	}

	x, okX := arithmeticOperand(a)
	y, okY := arithmeticOperand(b)
	if !okX || !okY {
		return nil, typeError(op, a, b)
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		return x / y, nil
	case "%":
		return math.Mod(x, y), nil
	}
	return nil, typeError(op, a, b)
}

func arithmeticOperand(v any) (float64, bool) {
	switch v.(type) {
	case []any, map[string]any:
		return 0, false
	}
	return ToNumber(v)
}

func compareOp(op string, a, b any) (any, error) {
	switch a.(type) {
	case []any, map[string]any:
		return nil, typeError(op, a, b)
	}
	switch b.(type) {
	case []any, map[string]any:
		return nil, typeError(op, a, b)
	}
	c, ok := Compare(a, b)
	if !ok {
		return false, nil
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}
