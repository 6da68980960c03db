// Package types defines the result codes and error values shared by the
// calculator engine and the surfaces that expose it.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Result is the outcome of a single evaluation.
type Result int

const (
	Success       Result = iota // evaluation produced a value
	Failed                      // structurally invalid input (CalculateFailed)
	InvalidFormat               // unknown token, bad parentheses, unparseable operand
	DivideByZero                // division with a zero divisor
	TooBigNumber                // NaN or infinite intermediate result
)

var resultNames = [...]string{
	Success:       "Success",
	Failed:        "Failed",
	InvalidFormat: "InvalidFormat",
	DivideByZero:  "DivideByZero",
	TooBigNumber:  "TooBigNumber",
}

// String returns the result name.
func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return "Unknown"
	}
	return resultNames[r]
}

// ParseResult converts a result name back into a Result. Matching is case
// insensitive and accepts "CalculateFailed" as an alias for Failed.
func ParseResult(s string) (Result, error) {
	if strings.EqualFold(s, "CalculateFailed") {
		return Failed, nil
	}
	for i, name := range resultNames {
		if strings.EqualFold(s, name) {
			return Result(i), nil
		}
	}
	return Failed, fmt.Errorf("unknown result %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(b []byte) error {
	v, err := ParseResult(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Status is the evaluator state observed after a call.
type Status int

const (
	Working Status = iota
	Error
)

// String returns the status name.
func (s Status) String() string {
	if s == Working {
		return "WORKING"
	}
	return "ERROR"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CalcError is a failed evaluation carrying its result code.
type CalcError struct {
	Result  Result
	Message string
}

// Error implements the error interface.
func (e *CalcError) Error() string {
	return fmt.Sprintf("%s (result=%s)", e.Message, e.Result)
}

// Is reports whether target is a CalcError with the same result code, so
// errors.Is(err, &CalcError{Result: DivideByZero}) matches any division error.
func (e *CalcError) Is(target error) bool {
	t, ok := target.(*CalcError)
	return ok && t.Result == e.Result
}

// ResultOf maps an error returned by the engine to its result code. A nil
// error is Success; errors that are not CalcErrors are Failed.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce.Result
	}
	return Failed
}

// Common error constructors.

// NewFailedError creates a CalculateFailed error.
func NewFailedError(msg string) *CalcError {
	return &CalcError{Result: Failed, Message: msg}
}

// NewInvalidFormatError creates an InvalidFormat error.
func NewInvalidFormatError(msg string) *CalcError {
	return &CalcError{Result: InvalidFormat, Message: msg}
}

// NewDivideByZeroError creates a DivideByZero error.
func NewDivideByZeroError() *CalcError {
	return &CalcError{Result: DivideByZero, Message: "division by zero"}
}

// NewTooBigNumberError creates a TooBigNumber error for a non-finite result.
func NewTooBigNumberError(op string) *CalcError {
	return &CalcError{Result: TooBigNumber, Message: fmt.Sprintf("result of '%s' is not a finite number", op)}
}
