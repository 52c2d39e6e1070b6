package formula

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// unsafePattern matches call patterns that must never reach an expression,
// whether written in the source or smuggled in through string values.
var unsafePattern = regexp.MustCompile(`(eval|Function|setTimeout|setInterval|import|require)\s*\(`)

// Program is a parsed expression ready for evaluation.
type Program struct {
	Source string
	Root   Node
}

// Identifiers returns the identifiers referenced by the program.
func (p *Program) Identifiers() []string {
	return Identifiers(p.Root)
}

// Parser handles formula parsing and keeps parsed programs for reuse
type Parser struct {
	mu    sync.RWMutex
	cache map[string]*Program
	limit int
}

// NewParser creates a new formula parser
func NewParser() *Parser {
	return &Parser{
		cache: make(map[string]*Program),
		limit: 4096,
	}
}

// Parse parses source into a Program. Parsed programs are cached by source text.
func (p *Parser) Parse(source string) (*Program, error) {
	p.mu.RLock()
	prog, ok := p.cache[source]
	p.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := compile(source)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(p.cache) >= p.limit {
		p.cache = make(map[string]*Program)
	}
	p.cache[source] = prog
	p.mu.Unlock()
	return prog, nil
}

// Evaluate parses and evaluates an expression against a flat set of parameters
func (p *Parser) Evaluate(ctx context.Context, expression string, params map[string]any) (any, error) {
	prog, err := p.Parse(expression)
	if err != nil {
		return nil, err
	}
	ev := NewEvaluator(Builtins())
	return ev.Eval(ctx, prog, MapEnv(params))
}

// Validate reports whether the expression parses and passes the safety screen.
func (p *Parser) Validate(expression string) error {
	_, err := p.Parse(expression)
	return err
}

// DefaultParser is the global parser instance
var DefaultParser = NewParser()

// Parse is a convenience function using the default parser
func Parse(source string) (*Program, error) {
	return DefaultParser.Parse(source)
}

// Evaluate is a convenience function using the default parser
func Evaluate(ctx context.Context, expression string, params map[string]any) (any, error) {
	return DefaultParser.Evaluate(ctx, expression, params)
}

// CheckSafe returns ErrUnsafeExpression when s contains a denylisted call pattern.
func CheckSafe(s string) error {
	if m := unsafePattern.FindString(s); m != "" {
		return fmt.Errorf("%w: %q", ErrUnsafeExpression, m)
	}
	return nil
}

func compile(source string) (*Program, error) {
	if err := CheckSafe(source); err != nil {
		return nil, err
	}
	tree, err := exprParser.ParseString("", source)
	if err != nil {
		return nil, toSyntaxError(err)
	}
	root, err := lowerTernary(tree)
	if err != nil {
		return nil, err
	}
	return &Program{Source: source, Root: root}, nil
}

func toSyntaxError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &SyntaxError{Pos: toPosition(perr.Position()), Message: perr.Message()}
	}
	return &SyntaxError{Pos: Position{Line: 1, Column: 1}, Message: err.Error()}
}

func toPosition(p lexer.Position) Position {
	return Position{Line: p.Line, Column: p.Column}
}

func lowerTernary(t *ternaryExpr) (Node, error) {
	cond, err := lowerOr(t.Cond)
	if err != nil {
		return nil, err
	}
	if t.Then == nil {
		return cond, nil
	}
	then, err := lowerTernary(t.Then)
	if err != nil {
		return nil, err
	}
	els, err := lowerTernary(t.Else)
	if err != nil {
		return nil, err
	}
	return &Conditional{Pos: toPosition(t.Pos), Cond: cond, Then: then, Else: els}, nil
}

// The binary levels all share the shape Left (Op Right)*, folded left-associatively.

func lowerOr(e *orExpr) (Node, error) {
	left, err := lowerAnd(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := lowerAnd(tail.Right)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: toPosition(tail.Pos), Op: tail.Op, Left: left, Right: right}
	}
	return left, nil
}

func lowerAnd(e *andExpr) (Node, error) {
	left, err := lowerEquality(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := lowerEquality(tail.Right)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: toPosition(tail.Pos), Op: tail.Op, Left: left, Right: right}
	}
	return left, nil
}

func lowerEquality(e *equalityExpr) (Node, error) {
	left, err := lowerComparison(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := lowerComparison(tail.Right)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: toPosition(tail.Pos), Op: tail.Op, Left: left, Right: right}
	}
	return left, nil
}

func lowerComparison(e *comparisonExpr) (Node, error) {
	left, err := lowerAdditive(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := lowerAdditive(tail.Right)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: toPosition(tail.Pos), Op: tail.Op, Left: left, Right: right}
	}
	return left, nil
}

func lowerAdditive(e *additiveExpr) (Node, error) {
	left, err := lowerMultiplicative(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := lowerMultiplicative(tail.Right)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: toPosition(tail.Pos), Op: tail.Op, Left: left, Right: right}
	}
	return left, nil
}

func lowerMultiplicative(e *multiplicativeExpr) (Node, error) {
	left, err := lowerUnary(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := lowerUnary(tail.Right)
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: toPosition(tail.Pos), Op: tail.Op, Left: left, Right: right}
	}
	return left, nil
}

func lowerUnary(e *unaryExpr) (Node, error) {
	if e.Primary != nil {
		return lowerPrimary(e.Primary)
	}
	operand, err := lowerUnary(e.Operand)
	if err != nil {
		return nil, err
	}
	return &Unary{Pos: toPosition(e.Pos), Op: e.Op, Operand: operand}, nil
}

func lowerPrimary(e *primaryExpr) (Node, error) {
	pos := toPosition(e.Pos)
	switch {
	case e.Number != nil:
		return &Literal{Pos: pos, Value: *e.Number}, nil
	case e.String != nil:
		return &Literal{Pos: pos, Value: *e.String}, nil
	case e.Keyword != nil:
		switch *e.Keyword {
		case "true":
			return &Literal{Pos: pos, Value: true}, nil
		case "false":
			return &Literal{Pos: pos, Value: false}, nil
		default:
			return &Literal{Pos: pos, Value: nil}, nil
		}
	case e.Call != nil:
		args := make([]Node, 0, len(e.Call.Args))
		for _, a := range e.Call.Args {
			arg, err := lowerTernary(a)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return &Call{Pos: pos, Name: e.Call.Name, Args: args}, nil
	case e.Ident != nil:
		return &Identifier{Pos: pos, Name: *e.Ident}, nil
	case e.Array != nil:
		items := make([]Node, 0, len(e.Array.Items))
		for _, it := range e.Array.Items {
			item, err := lowerTernary(it)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return &ArrayLit{Pos: pos, Items: items}, nil
	case e.Object != nil:
		obj := &ObjectLit{Pos: pos}
		for _, entry := range e.Object.Entries {
			v, err := lowerTernary(entry.Value)
			if err != nil {
				return nil, err
			}
			obj.Keys = append(obj.Keys, entry.Key)
			obj.Values = append(obj.Values, v)
		}
		return obj, nil
	case e.Group != nil:
		return lowerTernary(e.Group)
	}
	return nil, &SyntaxError{Pos: pos, Message: "empty expression"}
}
