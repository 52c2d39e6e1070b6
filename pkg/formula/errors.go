package formula

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned when an expression cannot be parsed.
	ErrSyntax = errors.New("syntax error")
	// ErrUnknownIdentifier is returned when an identifier resolves to nothing.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrUnknownFunction is returned for calls to functions missing from the library.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrArgument is returned when a function receives the wrong number or kind of arguments.
	ErrArgument = errors.New("invalid argument")
	// ErrType is returned when an operator is applied to unsupported operand types.
	ErrType = errors.New("type mismatch")
	// ErrUnsafeExpression is returned when an expression contains a denylisted call pattern.
	ErrUnsafeExpression = errors.New("unsafe expression")
)

// Position is a 1-based line/column location inside an expression.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SyntaxError describes a parse failure.
type SyntaxError struct {
	Pos     Position
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

func argError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArgument, fmt.Sprintf(format, args...))
}

func typeError(op string, a, b any) error {
	return fmt.Errorf("%w: operator %s not defined for %s and %s", ErrType, op, KindOf(a), KindOf(b))
}

func unaryTypeError(op string, a any) error {
	return fmt.Errorf("%w: operator %s not defined for %s", ErrType, op, KindOf(a))
}
