package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// MaxExpressionLength is the maximum allowed length for a single expression.
const MaxExpressionLength = 1024

// Lexer tokenizes a whitespace separated calculator expression.
type Lexer struct {
	input string
	ops   *Registry
}

// NewLexer creates a new lexer for the given input. A nil registry selects
// the default operator table.
func NewLexer(input string, ops *Registry) *Lexer {
	if ops == nil {
		ops = DefaultOperators()
	}
	return &Lexer{input: input, ops: ops}
}

// Tokenize splits the input on whitespace and classifies every chunk.
func (l *Lexer) Tokenize() ([]Token, error) {
	if len(l.input) > MaxExpressionLength {
		return nil, types.NewInvalidFormatError(
			fmt.Sprintf("expression exceeds maximum length of %d characters", MaxExpressionLength))
	}
	return Classify(strings.Fields(l.input), l.ops)
}

// Tokenize is shorthand for NewLexer(input, ops).Tokenize().
func Tokenize(input string, ops *Registry) ([]Token, error) {
	return NewLexer(input, ops).Tokenize()
}

// Classify turns pre-split chunks into tokens. A chunk that parses as a
// number becomes a Literal holding the original text; otherwise it must
// name a registered operator.
func Classify(chunks []string, ops *Registry) ([]Token, error) {
	if ops == nil {
		ops = DefaultOperators()
	}
	tokens := make([]Token, 0, len(chunks))
	for i, chunk := range chunks {
		num, err := isNumber(chunk)
		if err != nil {
			return nil, types.NewInvalidFormatError(
				fmt.Sprintf("number %q at position %d is out of range", chunk, i))
		}
		if num {
			tokens = append(tokens, Lit(chunk))
			continue
		}
		op, ok := ops.Lookup(chunk)
		if !ok {
			return nil, types.NewInvalidFormatError(
				fmt.Sprintf("unrecognized token %q at position %d", chunk, i))
		}
		tokens = append(tokens, Op(op.Symbol))
	}
	return tokens, nil
}

// isNumber accepts decimal numbers only. strconv.ParseFloat alone would
// also accept "inf", "NaN" and hex floats. A well-formed number beyond the
// float64 range returns strconv.ErrRange.
func isNumber(s string) (bool, error) {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch < '0' || ch > '9') && ch != '.' && ch != 'e' && ch != 'E' && ch != '+' && ch != '-' {
			return false, nil
		}
	}
	_, err := strconv.ParseFloat(s, 64)
	if errors.Is(err, strconv.ErrRange) {
		return false, err
	}
	return err == nil, nil
}

// joinLiterals concatenates runs of adjacent literal tokens. A keypad emits
// one token per key press, so "1" "0" "0" is the operand "100".
func joinLiterals(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if n := len(out); n > 0 && t.Kind == Literal && out[n-1].Kind == Literal {
			out[n-1].Text += t.Text
			continue
		}
		out = append(out, t)
	}
	return out
}
