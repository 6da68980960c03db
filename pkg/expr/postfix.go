package expr

import (
	"fmt"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// ToPostfix reorders an infix token sequence into postfix order using the
// Shunting-Yard algorithm. Unclosed parentheses are closed at the end of
// the input; a closing parenthesis without a matching opener is an
// InvalidFormat error.
func ToPostfix(tokens []Token, ops *Registry) ([]Token, error) {
	if ops == nil {
		ops = DefaultOperators()
	}
	tokens = balanceParens(tokens)

	out := make([]Token, 0, len(tokens))
	stack := make([]*OperatorDesc, 0, len(tokens)/2)

	for i, tok := range tokens {
		if tok.Kind == Literal {
			out = append(out, tok)
			continue
		}

		op, ok := ops.Lookup(tok.Text)
		if !ok {
			return nil, types.NewInvalidFormatError(
				fmt.Sprintf("unknown operator %q at position %d", tok.Text, i))
		}

		switch op.Symbol {
		case SymOpen:
			stack = append(stack, op)
		case SymClose:
			matched := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.Symbol == SymOpen {
					matched = true
					break
				}
				out = append(out, Op(top.Symbol))
			}
			if !matched {
				return nil, types.NewInvalidFormatError(
					fmt.Sprintf("mismatched closing parenthesis at position %d", i))
			}
		default:
			// >= keeps equal-priority operators left-associative: 8 - 4 - 2 is (8 - 4) - 2.
			for len(stack) > 0 && stack[len(stack)-1].Priority >= op.Priority {
				out = append(out, Op(stack[len(stack)-1].Symbol))
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, op)
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, Op(stack[i].Symbol))
	}
	return out, nil
}

// balanceParens appends one closing parenthesis per unclosed opener.
func balanceParens(tokens []Token) []Token {
	open := 0
	for _, t := range tokens {
		switch {
		case t.IsOperator(SymOpen):
			open++
		case t.IsOperator(SymClose):
			open--
		}
	}
	if open <= 0 {
		return tokens
	}
	balanced := make([]Token, len(tokens), len(tokens)+open)
	copy(balanced, tokens)
	for ; open > 0; open-- {
		balanced = append(balanced, Op(SymClose))
	}
	return balanced
}
