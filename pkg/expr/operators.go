package expr

import (
	"math"
	"sort"
	"sync"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// Operator symbols understood by the default registry.
const (
	SymOpen    = "("
	SymClose   = ")"
	SymAdd     = "+"
	SymSub     = "-"
	SymMul     = "*"
	SymDiv     = "/"
	SymPercent = "%"
	SymNegate  = "±"
	SymDecimal = "."
)

// Arity is the number of operands an operator consumes.
type Arity int

const (
	Grouping Arity = iota // parentheses, never evaluated
	Unary
	Binary
)

func (a Arity) String() string {
	switch a {
	case Grouping:
		return "grouping"
	case Unary:
		return "unary"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// OperatorFunc evaluates an operator. Unary operators receive their operand
// as op1 and zero as op2.
type OperatorFunc func(op1, op2 float64) (float64, error)

// OperatorDesc describes one entry of the operator table.
type OperatorDesc struct {
	Symbol   string
	Priority int // higher binds tighter
	Arity    Arity
	Eval     OperatorFunc
}

// Registry maps operator symbols (and their aliases) to descriptors. A
// Registry is read-only once built and may be shared between evaluators.
type Registry struct {
	ops     map[string]*OperatorDesc
	aliases map[string]string
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultOperators returns the shared built-in operator table.
func DefaultOperators() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = newDefaultRegistry()
	})
	return defaultRegistry
}

func newDefaultRegistry() *Registry {
	r := &Registry{
		ops:     make(map[string]*OperatorDesc),
		aliases: make(map[string]string),
	}
	r.register(&OperatorDesc{Symbol: SymOpen, Priority: 0, Arity: Grouping})
	r.register(&OperatorDesc{Symbol: SymClose, Priority: 0, Arity: Grouping})
	r.register(&OperatorDesc{Symbol: SymAdd, Priority: 1, Arity: Binary, Eval: add})
	r.register(&OperatorDesc{Symbol: SymSub, Priority: 1, Arity: Binary, Eval: sub}, "−")
	r.register(&OperatorDesc{Symbol: SymMul, Priority: 2, Arity: Binary, Eval: mul}, "×", "x")
	r.register(&OperatorDesc{Symbol: SymDiv, Priority: 2, Arity: Binary, Eval: div}, "÷")
	r.register(&OperatorDesc{Symbol: SymPercent, Priority: 3, Arity: Unary, Eval: percent})
	r.register(&OperatorDesc{Symbol: SymNegate, Priority: 4, Arity: Unary, Eval: negate}, "neg", "+/-")
	r.register(&OperatorDesc{Symbol: SymDecimal, Priority: 5, Arity: Binary, Eval: decimalPoint})
	return r
}

func (r *Registry) register(op *OperatorDesc, aliases ...string) {
	r.ops[op.Symbol] = op
	for _, a := range aliases {
		r.aliases[a] = op.Symbol
	}
}

// Lookup resolves a symbol or alias to its descriptor.
func (r *Registry) Lookup(symbol string) (*OperatorDesc, bool) {
	if canonical, ok := r.aliases[symbol]; ok {
		symbol = canonical
	}
	op, ok := r.ops[symbol]
	return op, ok
}

// Symbols returns the canonical operator symbols in priority order.
func (r *Registry) Symbols() []string {
	syms := make([]string, 0, len(r.ops))
	for s := range r.ops {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		pi, pj := r.ops[syms[i]].Priority, r.ops[syms[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return syms[i] < syms[j]
	})
	return syms
}

// Aliases returns the alternative spellings accepted for symbol.
func (r *Registry) Aliases(symbol string) []string {
	var out []string
	for alias, canonical := range r.aliases {
		if canonical == symbol {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func add(a, b float64) (float64, error) { return a + b, nil }
func sub(a, b float64) (float64, error) { return a - b, nil }
func mul(a, b float64) (float64, error) { return a * b, nil }

func div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, types.NewDivideByZeroError()
	}
	return a / b, nil
}

func percent(a, _ float64) (float64, error) { return a / 100, nil }

func negate(a, _ float64) (float64, error) { return -a, nil }

// decimalPoint joins an integer part with a fractional part entered as a
// separate operand: b is shifted right of the point and added to a.
func decimalPoint(a, b float64) (float64, error) {
	frac := math.Abs(b)
	if math.IsInf(frac, 0) || math.IsNaN(frac) {
		return math.NaN(), nil
	}
	for frac >= 1 {
		frac /= 10
	}
	if math.Signbit(a) {
		return a - frac, nil
	}
	return a + frac, nil
}
