package formula

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprLexer tokenizes the calculator expression language. Rules are tried in
// order, so multi-character operators must precede their prefixes.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Number", Pattern: `(?:\d+(?:\.\d+)?|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Ident", Pattern: `[\p{L}_$][\p{L}\p{N}_$]*`},
	{Name: "Operator", Pattern: `===|!==|==|!=|<=|>=|&&|\|\||[-+*/%<>!?:]`},
	{Name: "Punct", Pattern: `[(),\[\]{}]`},
})

var exprParser = participle.MustBuild[ternaryExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

type ternaryExpr struct {
	Pos  lexer.Position
	Cond *orExpr      `parser:"@@"`
	Then *ternaryExpr `parser:"( '?' @@"`
	Else *ternaryExpr `parser:"  ':' @@ )?"`
}

type orExpr struct {
	Pos  lexer.Position
	Left *andExpr  `parser:"@@"`
	Rest []*orTail `parser:"@@*"`
}

type orTail struct {
	Pos   lexer.Position
	Op    string   `parser:"@'||'"`
	Right *andExpr `parser:"@@"`
}

type andExpr struct {
	Pos  lexer.Position
	Left *equalityExpr `parser:"@@"`
	Rest []*andTail    `parser:"@@*"`
}

type andTail struct {
	Pos   lexer.Position
	Op    string        `parser:"@'&&'"`
	Right *equalityExpr `parser:"@@"`
}

type equalityExpr struct {
	Pos  lexer.Position
	Left *comparisonExpr `parser:"@@"`
	Rest []*equalityTail `parser:"@@*"`
}

type equalityTail struct {
	Pos   lexer.Position
	Op    string          `parser:"@('===' | '!==' | '==' | '!=')"`
	Right *comparisonExpr `parser:"@@"`
}

type comparisonExpr struct {
	Pos  lexer.Position
	Left *additiveExpr     `parser:"@@"`
	Rest []*comparisonTail `parser:"@@*"`
}

type comparisonTail struct {
	Pos   lexer.Position
	Op    string        `parser:"@('<=' | '>=' | '<' | '>')"`
	Right *additiveExpr `parser:"@@"`
}

type additiveExpr struct {
	Pos  lexer.Position
	Left *multiplicativeExpr `parser:"@@"`
	Rest []*additiveTail     `parser:"@@*"`
}

type additiveTail struct {
	Pos   lexer.Position
	Op    string              `parser:"@('+' | '-')"`
	Right *multiplicativeExpr `parser:"@@"`
}

type multiplicativeExpr struct {
	Pos  lexer.Position
	Left *unaryExpr            `parser:"@@"`
	Rest []*multiplicativeTail `parser:"@@*"`
}

type multiplicativeTail struct {
	Pos   lexer.Position
	Op    string     `parser:"@('*' | '/' | '%')"`
	Right *unaryExpr `parser:"@@"`
}

type unaryExpr struct {
	Pos     lexer.Position
	Op      string       `parser:"(  @('!' | '-' | '+')"`
	Operand *unaryExpr   `parser:"   @@ )"`
	Primary *primaryExpr `parser:"| @@"`
}

type primaryExpr struct {
	Pos     lexer.Position
	Number  *float64     `parser:"  @Number"`
	String  *string      `parser:"| @String"`
	Keyword *string      `parser:"| @('true' | 'false' | 'null')"`
	Call    *callExpr    `parser:"| @@"`
	Ident   *string      `parser:"| @Ident"`
	Array   *arrayExpr   `parser:"| @@"`
	Object  *objectExpr  `parser:"| @@"`
	Group   *ternaryExpr `parser:"| '(' @@ ')'"`
}

type callExpr struct {
	Pos  lexer.Position
	Name string         `parser:"@Ident '('"`
	Args []*ternaryExpr `parser:"( @@ ( ',' @@ )* )? ')'"`
}

type arrayExpr struct {
	Pos   lexer.Position
	Items []*ternaryExpr `parser:"'[' ( @@ ( ',' @@ )* ','? )? ']'"`
}

type objectExpr struct {
	Pos     lexer.Position
	Entries []*objectEntry `parser:"'{' ( @@ ( ',' @@ )* ','? )? '}'"`
}

type objectEntry struct {
	Pos   lexer.Position
	Key   string       `parser:"@(String | Ident)"`
	Value *ternaryExpr `parser:"':' @@"`
}
