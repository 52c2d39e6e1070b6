package formula

import (
	"strconv"
	"strings"
)

// Node is an element of a parsed expression tree.
type Node interface {
	Position() Position
	String() string
}

// Literal is a constant number, string, boolean or null.
type Literal struct {
	Pos   Position
	Value any
}

// Identifier references a variable or another formula by id.
type Identifier struct {
	Pos  Position
	Name string
}

// Unary is a prefix operator application.
type Unary struct {
	Pos     Position
	Op      string
	Operand Node
}

// Binary is an infix operator application.
type Binary struct {
	Pos   Position
	Op    string
	Left  Node
	Right Node
}

// Conditional is the ternary operator `cond ? then : else`.
type Conditional struct {
	Pos  Position
	Cond Node
	Then Node
	Else Node
}

// Call is a named function call.
type Call struct {
	Pos  Position
	Name string
	Args []Node
}

// ArrayLit is a bracketed list of expressions.
type ArrayLit struct {
	Pos   Position
	Items []Node
}

// ObjectLit is a braced list of key/value pairs. Keys keep source order.
type ObjectLit struct {
	Pos    Position
	Keys   []string
	Values []Node
}

func (n *Literal) Position() Position     { return n.Pos }
func (n *Identifier) Position() Position  { return n.Pos }
func (n *Unary) Position() Position       { return n.Pos }
func (n *Binary) Position() Position      { return n.Pos }
func (n *Conditional) Position() Position { return n.Pos }
func (n *Call) Position() Position        { return n.Pos }
func (n *ArrayLit) Position() Position    { return n.Pos }
func (n *ObjectLit) Position() Position   { return n.Pos }

func (n *Literal) String() string {
	switch v := n.Value.(type) {
	case string:
		return strconv.Quote(v)
	case nil:
		return "null"
	default:
		return ToString(v)
	}
}

func (n *Identifier) String() string { return n.Name }

func (n *Unary) String() string { return n.Op + n.Operand.String() }

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op + " " + n.Right.String() + ")"
}

func (n *Conditional) String() string {
	return "(" + n.Cond.String() + " ? " + n.Then.String() + " : " + n.Else.String() + ")"
}

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

func (n *ArrayLit) String() string {
	items := make([]string, len(n.Items))
	for i, it := range n.Items {
		items[i] = it.String()
	}
	return "[" + strings.Join(items, ", ") + "]"
}

func (n *ObjectLit) String() string {
	entries := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		entries[i] = strconv.Quote(k) + ": " + n.Values[i].String()
	}
	return "{" + strings.Join(entries, ", ") + "}"
}

// Walk visits node and its descendants depth-first. Returning false from fn
// skips the children of the visited node.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Unary:
		Walk(n.Operand, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Conditional:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *ArrayLit:
		for _, it := range n.Items {
			Walk(it, fn)
		}
	case *ObjectLit:
		for _, v := range n.Values {
			Walk(v, fn)
		}
	}
}

// Identifiers returns the distinct identifier names referenced by node in
// first-appearance order. Function names and object keys are not included.
func Identifiers(node Node) []string {
	seen := make(map[string]struct{})
	var names []string
	Walk(node, func(n Node) bool {
		if id, ok := n.(*Identifier); ok {
			if _, dup := seen[id.Name]; !dup {
				seen[id.Name] = struct{}{}
				names = append(names, id.Name)
			}
		}
		return true
	})
	return names
}

// Calls returns the distinct function names called by node in first-appearance order.
func Calls(node Node) []string {
	seen := make(map[string]struct{})
	var names []string
	Walk(node, func(n Node) bool {
		if c, ok := n.(*Call); ok {
			if _, dup := seen[c.Name]; !dup {
				seen[c.Name] = struct{}{}
				names = append(names, c.Name)
			}
		}
		return true
	})
	return names
}
