package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// operand is an entry of the evaluation stack. Only text that came from a
// literal token is eligible for the leading-zero correction; computed
// intermediate results are not.
type operand struct {
	text    string
	literal bool
}

// recordFunc receives the right-hand operand and operator of every binary
// operation except the decimal point, for repeat-equals replay.
type recordFunc func(operand Token, operator string)

// EvaluatePostfix evaluates a postfix token queue without session state.
func EvaluatePostfix(queue []Token, ops *Registry) (float64, error) {
	if ops == nil {
		ops = DefaultOperators()
	}
	return evalPostfix(queue, ops, nil)
}

func evalPostfix(queue []Token, ops *Registry, record recordFunc) (float64, error) {
	stack := make([]operand, 0, len(queue))

	pop := func() (operand, bool) {
		if len(stack) == 0 {
			return operand{}, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, true
	}

	for i, tok := range queue {
		if tok.Kind == Literal {
			stack = append(stack, operand{text: tok.Text, literal: true})
			continue
		}

		op, ok := ops.Lookup(tok.Text)
		if !ok || op.Arity == Grouping || op.Eval == nil {
			return 0, types.NewInvalidFormatError(
				fmt.Sprintf("operator %q cannot be evaluated", tok.Text))
		}

		var op1, op2 float64
		switch op.Arity {
		case Binary:
			right, ok2 := pop()
			left, ok1 := pop()
			if !ok1 || !ok2 {
				return 0, types.NewInvalidFormatError(
					fmt.Sprintf("operator '%s' is missing an operand", op.Symbol))
			}
			var err error
			if op1, err = left.value(); err != nil {
				return 0, err
			}
			if op2, err = right.value(); err != nil {
				return 0, err
			}
			if op.Symbol != SymDecimal && record != nil {
				record(Lit(right.text), op.Symbol)
			}
		case Unary:
			arg, ok := pop()
			if !ok {
				return 0, types.NewInvalidFormatError(
					fmt.Sprintf("operator '%s' is missing an operand", op.Symbol))
			}
			var err error
			if op1, err = arg.value(); err != nil {
				return 0, err
			}
		}

		res, err := op.Eval(op1, op2)
		if err != nil {
			return 0, err
		}
		if !isFinite(res) {
			return 0, types.NewTooBigNumberError(op.Symbol)
		}

		// "100 + 10 %" is 10 percent of 100, unless the percentage is
		// about to be multiplied or divided.
		if op.Symbol == SymPercent && len(stack) > 0 && !nextIsMulDiv(queue, i) {
			base, err := stack[len(stack)-1].value()
			if err != nil {
				return 0, err
			}
			res *= base
			if !isFinite(res) {
				return 0, types.NewTooBigNumberError(op.Symbol)
			}
		}

		stack = append(stack, operand{text: FormatNumber(res)})
	}

	if len(stack) != 1 {
		return 0, types.NewFailedError(
			fmt.Sprintf("expression left %d operands on the stack", len(stack)))
	}
	v, err := stack[0].value()
	if err != nil {
		return 0, types.NewFailedError(err.Error())
	}
	return v, nil
}

func nextIsMulDiv(queue []Token, i int) bool {
	if i+1 >= len(queue) {
		return false
	}
	next := queue[i+1]
	return next.IsOperator(SymMul) || next.IsOperator(SymDiv)
}

func (o operand) value() (float64, error) {
	text := o.text
	if o.literal {
		text = CorrectLeadingZero(text)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, types.NewInvalidFormatError(fmt.Sprintf("operand %q is not a number", o.text))
	}
	return v, nil
}

// CorrectLeadingZero rewrites digit strings entered without a decimal point
// but starting with zero, so that "05" reads as "0.5". Text that already
// contains a point is returned unchanged.
func CorrectLeadingZero(text string) string {
	if !strings.HasPrefix(text, "0") || strings.Contains(text, ".") {
		return text
	}
	return "0." + text[1:]
}

// FormatNumber renders v with the fewest digits that parse back to the
// same float64.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
