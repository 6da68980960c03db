// Package expr implements the keypad calculator engine: a whitespace
// tokenizer, an operator-precedence (Shunting-Yard) infix to postfix
// converter and a postfix evaluator with repeat-equals session state.
package expr

import "strings"

// TokenKind distinguishes operands from operators.
type TokenKind int

const (
	Literal  TokenKind = iota // numeric operand kept in textual form
	Operator                  // symbol from the operator registry
)

// String returns a debug-friendly representation of the token kind.
func (k TokenKind) String() string {
	switch k {
	case Literal:
		return "LITERAL"
	case Operator:
		return "OPERATOR"
	default:
		return "UNKNOWN"
	}
}

// Token is a single element of an expression. Literal tokens hold the text
// the user entered, not a parsed number, so that the leading-zero
// correction can be applied when the operand is consumed.
type Token struct {
	Kind TokenKind
	Text string // literal text, or canonical operator symbol
}

// Lit creates a literal token.
func Lit(text string) Token {
	return Token{Kind: Literal, Text: text}
}

// Op creates an operator token.
func Op(symbol string) Token {
	return Token{Kind: Operator, Text: symbol}
}

// IsOperator reports whether t is the operator with the given symbol.
func (t Token) IsOperator(symbol string) bool {
	return t.Kind == Operator && t.Text == symbol
}

func (t Token) String() string {
	return t.Text
}

// Join renders tokens as a space separated expression that Tokenize
// accepts again.
func Join(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}
