package expr

import (
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// Evaluator is a calculator session. It keeps the last good result and the
// operand/operator pair needed to replay the last operation on repeated
// "=" presses.
//
// An Evaluator is not safe for concurrent use; callers that share one
// between goroutines must serialise access themselves.
type Evaluator struct {
	ops *Registry

	status       types.Status
	result       float64
	lastOperand  *Token
	lastOperator string
	isEqualUsed  bool
}

// New creates an evaluator over the default operator table.
func New() *Evaluator {
	return NewWithOperators(DefaultOperators())
}

// NewWithOperators creates an evaluator over the given operator table.
func NewWithOperators(ops *Registry) *Evaluator {
	if ops == nil {
		ops = DefaultOperators()
	}
	return &Evaluator{ops: ops, status: types.Working}
}

// Operators returns the operator table used by the evaluator.
func (e *Evaluator) Operators() *Registry { return e.ops }

// Status returns Working after a successful call and Error otherwise.
func (e *Evaluator) Status() types.Status { return e.status }

// Result returns the last successfully computed value.
func (e *Evaluator) Result() float64 { return e.result }

// Equaled reports whether the previous call was a successful Equal.
func (e *Evaluator) Equaled() bool { return e.isEqualUsed }

// LastOperand returns the operand a repeated Equal would replay.
func (e *Evaluator) LastOperand() (Token, bool) {
	if e.lastOperand == nil {
		return Token{}, false
	}
	return *e.lastOperand, true
}

// LastOperator returns the operator a repeated Equal would replay.
func (e *Evaluator) LastOperator() (string, bool) {
	return e.lastOperator, e.lastOperator != ""
}

// Reset returns the evaluator to its initial state.
func (e *Evaluator) Reset() {
	e.status = types.Working
	e.result = 0
	e.isEqualUsed = false
	e.clearReplay()
}

// Evaluate tokenizes expression and evaluates it as fresh input.
func (e *Evaluator) Evaluate(expression string) (float64, error) {
	tokens, err := NewLexer(expression, e.ops).Tokenize()
	if err != nil {
		e.isEqualUsed = false
		e.failInput()
		return 0, err
	}
	return e.SetExpression(tokens)
}

// EvaluateChunks classifies pre-split tokens, as sent by a keypad, and
// evaluates them as fresh input.
func (e *Evaluator) EvaluateChunks(chunks []string) (float64, error) {
	tokens, err := Classify(chunks, e.ops)
	if err != nil {
		e.isEqualUsed = false
		e.failInput()
		return 0, err
	}
	return e.SetExpression(tokens)
}

// EqualChunks classifies pre-split tokens and presses "=" with them.
func (e *Evaluator) EqualChunks(chunks []string) (float64, error) {
	tokens, err := Classify(chunks, e.ops)
	if err != nil {
		if e.isEqualUsed {
			e.status = types.Error
		} else {
			e.failInput()
		}
		return 0, err
	}
	return e.Equal(tokens)
}

// failInput records a failure of fresh input.
func (e *Evaluator) failInput() {
	e.status = types.Error
	e.clearReplay()
}

// SetExpression evaluates a pre-tokenized sequence as fresh input. It always
// leaves the repeat-equals state; on failure the replay pair is cleared.
func (e *Evaluator) SetExpression(tokens []Token) (float64, error) {
	e.isEqualUsed = false
	v, err := e.compute(tokens)
	if err != nil {
		e.clearReplay()
		return 0, err
	}
	return v, nil
}

// Equal implements the "=" key. The first press evaluates tokens; later
// consecutive presses evaluate tokens followed by the last operator and
// operand. With no tokens the current result is used as the left operand,
// which requires a stored operator/operand pair.
func (e *Evaluator) Equal(tokens []Token) (float64, error) {
	if len(tokens) == 0 {
		if e.lastOperand == nil || e.lastOperator == "" {
			e.status = types.Error
			return 0, types.NewFailedError("no previous operation to repeat")
		}
		v, err := e.replay([]Token{Lit(FormatNumber(e.result))})
		if err != nil {
			return 0, err
		}
		e.isEqualUsed = true
		return v, nil
	}

	if !e.isEqualUsed {
		v, err := e.compute(tokens)
		if err != nil {
			e.clearReplay()
			return 0, err
		}
		e.isEqualUsed = true
		return v, nil
	}
	return e.replay(tokens)
}

func (e *Evaluator) replay(tokens []Token) (float64, error) {
	if len(tokens) == 0 || e.lastOperand == nil || e.lastOperator == "" {
		e.status = types.Error
		return 0, types.NewFailedError("no previous operation to repeat")
	}
	expr := make([]Token, 0, len(tokens)+2)
	expr = append(expr, tokens...)
	expr = append(expr, Op(e.lastOperator), *e.lastOperand)
	return e.compute(expr)
}

// compute runs the shared tokenize-convert-evaluate pipeline. The status
// stays Error unless the evaluation completes.
func (e *Evaluator) compute(tokens []Token) (float64, error) {
	e.status = types.Error

	if len(tokens) == 0 {
		e.result = 0
		e.status = types.Working
		return 0, nil
	}
	if tokens[len(tokens)-1].IsOperator(SymDecimal) {
		return 0, types.NewFailedError("expression ends with a decimal point")
	}

	postfix, err := ToPostfix(joinLiterals(tokens), e.ops)
	if err != nil {
		return 0, err
	}
	v, err := evalPostfix(postfix, e.ops, e.record)
	if err != nil {
		return 0, err
	}

	e.result = v
	e.status = types.Working
	return v, nil
}

func (e *Evaluator) record(operand Token, operator string) {
	e.lastOperand = &operand
	e.lastOperator = operator
}

func (e *Evaluator) clearReplay() {
	e.lastOperand = nil
	e.lastOperator = ""
}
