package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		in   string
		want Result
	}{
		{"Success", Success},
		{"divideByZero", DivideByZero},
		{"TOOBIGNUMBER", TooBigNumber},
		{"CalculateFailed", Failed},
		{"InvalidFormat", InvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResult(tt.in)
			if err != nil {
				t.Fatalf("ParseResult(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseResult(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseResult("Overflow"); err == nil {
		t.Error("expected error for unknown result")
	}
}

func TestResultOf(t *testing.T) {
	if got := ResultOf(nil); got != Success {
		t.Errorf("ResultOf(nil) = %v", got)
	}
	wrapped := fmt.Errorf("step 3: %w", NewDivideByZeroError())
	if got := ResultOf(wrapped); got != DivideByZero {
		t.Errorf("ResultOf(wrapped) = %v", got)
	}
	if got := ResultOf(errors.New("boom")); got != Failed {
		t.Errorf("ResultOf(plain) = %v", got)
	}
}

func TestCalcErrorIs(t *testing.T) {
	err := NewTooBigNumberError("*")
	if !errors.Is(err, &CalcError{Result: TooBigNumber}) {
		t.Error("expected errors.Is to match by result code")
	}
	if errors.Is(err, &CalcError{Result: DivideByZero}) {
		t.Error("unexpected match on a different result code")
	}
}
