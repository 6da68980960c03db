package expr

import (
	"testing"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

func mustValue(t *testing.T, got float64, err error, want float64) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRepeatEqualsReplaysLastOperation(t *testing.T) {
	e := New()

	v, err := e.SetExpression(toks(t, "3", "+", "4"))
	mustValue(t, v, err, 7)

	v, err = e.Equal(nil)
	mustValue(t, v, err, 11)
	if !e.Equaled() {
		t.Error("expected Equaled state after Equal")
	}

	v, err = e.Equal(nil)
	mustValue(t, v, err, 15)

	op, ok := e.LastOperator()
	if !ok || op != "+" {
		t.Errorf("last operator = %q, %v", op, ok)
	}
	operand, ok := e.LastOperand()
	if !ok || operand != Lit("4") {
		t.Errorf("last operand = %v, %v", operand, ok)
	}
}

func TestRepeatEqualsWithDisplayTokens(t *testing.T) {
	e := New()

	v, err := e.Equal(toks(t, "2", "*", "3"))
	mustValue(t, v, err, 6)

	// Subsequent presses append "* 3" to whatever is on the display.
	v, err = e.Equal(toks(t, "6"))
	mustValue(t, v, err, 18)

	v, err = e.Equal(toks(t, "18"))
	mustValue(t, v, err, 54)

	v, err = e.Equal(toks(t, "1", "+", "1"))
	mustValue(t, v, err, 4) // 1 + 1 * 3
}

func TestEqualWithoutHistoryFails(t *testing.T) {
	e := New()
	_, err := e.Equal(nil)
	if types.ResultOf(err) != types.Failed {
		t.Fatalf("got %v, want Failed", err)
	}
	if e.Status() != types.Error {
		t.Errorf("status = %s, want ERROR", e.Status())
	}
	if e.Equaled() {
		t.Error("failed Equal must not enter Equaled state")
	}
}

func TestEqualFailureClearsReplayPair(t *testing.T) {
	e := New()

	v, err := e.SetExpression(toks(t, "3", "+", "4"))
	mustValue(t, v, err, 7)

	_, err = e.Equal(toks(t, "5", "/", "0"))
	if types.ResultOf(err) != types.DivideByZero {
		t.Fatalf("got %v, want DivideByZero", err)
	}
	if _, ok := e.LastOperator(); ok {
		t.Error("expected replay pair to be cleared after failed first Equal")
	}
	if e.Result() != 7 {
		t.Errorf("result = %v, want last good value 7", e.Result())
	}

	if _, err := e.Equal(nil); types.ResultOf(err) != types.Failed {
		t.Errorf("got %v, want Failed", err)
	}
}

func TestSetExpressionFailureClearsReplayPair(t *testing.T) {
	e := New()

	v, err := e.SetExpression(toks(t, "3", "+", "4"))
	mustValue(t, v, err, 7)

	if _, err := e.Evaluate("3 + )"); types.ResultOf(err) != types.InvalidFormat {
		t.Fatalf("got %v, want InvalidFormat", err)
	}
	if _, ok := e.LastOperand(); ok {
		t.Error("expected replay operand to be cleared")
	}
}

func TestSetExpressionLeavesEqualedState(t *testing.T) {
	e := New()

	v, err := e.Equal(toks(t, "3", "+", "4"))
	mustValue(t, v, err, 7)

	v, err = e.SetExpression(toks(t, "1", "+", "1"))
	mustValue(t, v, err, 2)
	if e.Equaled() {
		t.Fatal("SetExpression must leave the Equaled state")
	}

	// Not a replay: evaluated as a fresh expression.
	v, err = e.Equal(toks(t, "2", "*", "5"))
	mustValue(t, v, err, 10)
}

func TestDecimalPointIsNotReplayed(t *testing.T) {
	e := New()

	v, err := e.Equal(toks(t, "2", "+", "1", ".", "5"))
	mustValue(t, v, err, 3.5)

	operand, _ := e.LastOperand()
	op, _ := e.LastOperator()
	if op != "+" || operand.Text != "1.5" {
		t.Fatalf("replay pair = (%q, %q), want (\"+\", \"1.5\")", op, operand.Text)
	}

	v, err = e.Equal(nil)
	mustValue(t, v, err, 5)
}

func TestReplayFailureKeepsEqualedState(t *testing.T) {
	e := New()

	v, err := e.Equal(toks(t, "8", "/", "2"))
	mustValue(t, v, err, 4)

	_, err = e.Equal([]Token{Lit("4"), Op("*")})
	if types.ResultOf(err) != types.InvalidFormat {
		t.Fatalf("got %v, want InvalidFormat", err)
	}
	if !e.Equaled() {
		t.Error("replay failure must keep the Equaled state")
	}
	if e.Status() != types.Error {
		t.Errorf("status = %s, want ERROR", e.Status())
	}
}

func TestReset(t *testing.T) {
	e := New()
	v, err := e.Equal(toks(t, "3", "+", "4"))
	mustValue(t, v, err, 7)

	e.Reset()
	if e.Result() != 0 || e.Equaled() || e.Status() != types.Working {
		t.Errorf("unexpected state after reset: result=%v equaled=%v status=%s", e.Result(), e.Equaled(), e.Status())
	}
	if _, err := e.Equal(nil); types.ResultOf(err) != types.Failed {
		t.Errorf("got %v, want Failed", err)
	}
}

func TestEvaluatorsDoNotShareState(t *testing.T) {
	a, b := New(), New()
	v, err := a.Evaluate("3 + 4")
	mustValue(t, v, err, 7)

	if _, err := b.Equal(nil); types.ResultOf(err) != types.Failed {
		t.Errorf("second evaluator replayed state of the first: %v", err)
	}
	if a.Operators() != b.Operators() {
		t.Error("evaluators should share the default operator table")
	}
}

func TestEvaluateChunks(t *testing.T) {
	e := New()

	v, err := e.EvaluateChunks([]string{"1", "0", "0", "+", "1", "0", "%"})
	mustValue(t, v, err, 110)

	_, err = e.EvaluateChunks([]string{"2", "^", "3"})
	if types.ResultOf(err) != types.InvalidFormat {
		t.Fatalf("expected InvalidFormat, got %v", err)
	}
	if e.Status() != types.Error {
		t.Errorf("status = %v, want ERROR", e.Status())
	}
	if e.Result() != 110 {
		t.Errorf("result = %v, want 110", e.Result())
	}
	if _, ok := e.LastOperator(); ok {
		t.Error("expected replay pair to be cleared")
	}
}

func TestEqualChunksUnknownTokenKeepsEqualedState(t *testing.T) {
	e := New()

	v, err := e.EqualChunks([]string{"2", "*", "3"})
	mustValue(t, v, err, 6)

	if _, err := e.EqualChunks([]string{"?"}); types.ResultOf(err) != types.InvalidFormat {
		t.Fatalf("expected InvalidFormat, got %v", err)
	}
	if !e.Equaled() {
		t.Error("expected Equaled state to survive a rejected token")
	}

	v, err = e.EqualChunks(nil)
	mustValue(t, v, err, 18)
}
