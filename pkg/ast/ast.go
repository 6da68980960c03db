// Package ast defines the types of a parsed calculator script. A script
// drives one or more calculator sessions through an ordered list of key
// presses and optional expectations, and is produced by the parser before
// being run by the runtime.
package ast

import "github.com/lemonberrylabs/keypad-calc/pkg/types"

// Script represents a complete parsed script.
type Script struct {
	// Name identifies the script in reports. It defaults to the file name
	// when loaded from disk.
	Name string

	// Parallel is the number of sessions that may run at the same time.
	// Zero or one runs sessions one after another, in order.
	Parallel int

	// Sessions is the ordered list of sessions in the script.
	Sessions []*Session
}

// Session is one calculator session. Each session gets its own evaluator.
type Session struct {
	// Name is the session identifier, unique within the script.
	Name string

	// Steps is the ordered list of key presses.
	Steps []*Step
}

// StepKind identifies what a step does to the session's evaluator.
type StepKind int

const (
	// StepSet evaluates a whitespace-separated expression as fresh input.
	StepSet StepKind = iota
	// StepTokens evaluates a pre-split token list as fresh input.
	StepTokens
	// StepEqual presses "=" with a token list, possibly empty.
	StepEqual
	// StepReset clears the evaluator.
	StepReset
)

func (k StepKind) String() string {
	switch k {
	case StepSet:
		return "set"
	case StepTokens:
		return "tokens"
	case StepEqual:
		return "equal"
	case StepReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Step represents a single step of a session.
type Step struct {
	// Name is an optional label used in reports.
	Name string

	// Kind is the step kind.
	Kind StepKind

	// Expression holds the input of a set step.
	Expression string

	// Tokens holds the input of a tokens or equal step.
	Tokens []string

	// Expect is the expected value, nil when unchecked.
	Expect *float64

	// ExpectResult is the expected result code, nil when unchecked.
	ExpectResult *types.Result

	// Line is the source line of the step, for error messages.
	Line int
}

// Input returns the step's input as a token list.
func (s *Step) Input() []string {
	switch s.Kind {
	case StepTokens, StepEqual:
		return s.Tokens
	default:
		return nil
	}
}

// HasExpectations reports whether the step checks anything.
func (s *Step) HasExpectations() bool {
	return s.Expect != nil || s.ExpectResult != nil
}

// StepCount returns the total number of steps across all sessions.
func (s *Script) StepCount() int {
	n := 0
	for _, sess := range s.Sessions {
		n += len(sess.Steps)
	}
	return n
}
