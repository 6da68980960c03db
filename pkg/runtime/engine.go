// Package runtime runs parsed calculator scripts against sessions of the
// session store and checks each step's expectations.
package runtime

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/keypad-calc/pkg/ast"
	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/store"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// MaxStepsPerExecution is the maximum number of steps that can execute in a
// single run.
const MaxStepsPerExecution = 10_000


// StepReport is the outcome of one step.
type StepReport struct {
	Index   int          `json:"index" yaml:"index"`
	Name    string       `json:"name,omitempty" yaml:"name,omitempty"`
	Kind    string       `json:"kind" yaml:"kind"`
	Input   []string     `json:"input,omitempty" yaml:"input,omitempty"`
	Result  types.Result `json:"result" yaml:"result"`
	Value   float64      `json:"value" yaml:"value"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty"`
	Passed  bool         `json:"passed" yaml:"passed"`
	Failure string       `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// SessionReport groups the step reports of one session.
type SessionReport struct {
	Name     string       `json:"name" yaml:"name"`
	ID       string       `json:"id" yaml:"id"`
	Steps    []StepReport `json:"steps" yaml:"steps"`
	Failures int          `json:"failures" yaml:"failures"`
}

// Report is the outcome of a script run.
type Report struct {
	Script   string          `json:"script,omitempty" yaml:"script,omitempty"`
	Sessions []SessionReport `json:"sessions" yaml:"sessions"`
	Steps    int             `json:"steps" yaml:"steps"`
	Failures int             `json:"failures" yaml:"failures"`
	Duration time.Duration   `json:"duration" yaml:"duration"`
}

// Passed reports whether every step met its expectations.
func (r *Report) Passed() bool {
	return r.Failures == 0
}

// Engine runs a script. Each script session is backed by a store session.
type Engine struct {
	script *ast.Script
	store  *store.Store

	// KeepSessions leaves the store sessions in place after the run.
	KeepSessions bool

	// OnCalculation, if set, is called after every step.
	OnCalculation func(calc store.Calculation)

	mu        sync.Mutex
	stepCount int
}

// NewEngine creates a new script engine. A nil store gets a private,
// unbounded one.
func NewEngine(script *ast.Script, st *store.Store) *Engine {
	if st == nil {
		st = store.New(store.Options{})
	}
	return &Engine{
		script: script,
		store:  st,
	}
}

// Execute runs every session of the script and returns the report. Sessions
// run in order unless the script allows parallelism. A non-nil error means
// the run was interrupted; the report then holds the steps that did run.
func (e *Engine) Execute(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		Script:   e.script.Name,
		Sessions: make([]SessionReport, len(e.script.Sessions)),
	}

	var err error
	if e.script.Parallel > 1 {
		err = e.executeParallel(ctx, report)
	} else {
		for i, sess := range e.script.Sessions {
			if err = e.executeSession(ctx, sess, &report.Sessions[i]); err != nil {
				break
			}
		}
	}

	for _, sr := range report.Sessions {
		report.Steps += len(sr.Steps)
		report.Failures += sr.Failures
	}
	report.Duration = time.Since(start)
	return report, err
}

func (e *Engine) executeParallel(ctx context.Context, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.script.Parallel)

	for i, sess := range e.script.Sessions {
		i, sess := i, sess
		g.Go(func() error {
			return e.executeSession(gctx, sess, &report.Sessions[i])
		})
	}
	return g.Wait()
}

// executeSession runs one session's steps on a fresh store session.
func (e *Engine) executeSession(ctx context.Context, sess *ast.Session, out *SessionReport) error {
	out.Name = sess.Name

	name := sess.Name
	if e.script.Name != "" {
		name = e.script.Name + "/" + sess.Name
	}
	ss, err := e.store.Create(name)
	if err != nil {
		return fmt.Errorf("session '%s': %w", sess.Name, err)
	}
	out.ID = ss.ID
	if !e.KeepSessions {
		defer func() { _ = e.store.Delete(ss.ID) }()
	}

	for i, step := range sess.Steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e.mu.Lock()
		e.stepCount++
		if e.stepCount > MaxStepsPerExecution {
			e.mu.Unlock()
			return fmt.Errorf("script exceeded maximum step limit of %d", MaxStepsPerExecution)
		}
		e.mu.Unlock()

		calc := executeStep(ss, step)
		if e.OnCalculation != nil {
			e.OnCalculation(calc)
		}

		sr := StepReport{
			Index:  i + 1,
			Name:   step.Name,
			Kind:   step.Kind.String(),
			Input:  calc.Input,
			Result: calc.Result,
			Value:  calc.Value,
			Error:  calc.Error,
		}
		sr.Failure = check(step, calc)
		sr.Passed = sr.Failure == ""
		if !sr.Passed {
			out.Failures++
		}
		out.Steps = append(out.Steps, sr)
	}
	return nil
}

// executeStep applies a single step to the session.
func executeStep(ss *store.Session, step *ast.Step) store.Calculation {
	switch step.Kind {
	case ast.StepSet:
		return ss.EvaluateExpression(step.Expression)
	case ast.StepTokens:
		return ss.Evaluate(step.Input())
	case ast.StepEqual:
		return ss.Equal(step.Input())
	default:
		return ss.Reset()
	}
}

// check returns a description of the first unmet expectation, or "" when
// the step passed. A step without expectations must succeed.
func check(step *ast.Step, calc store.Calculation) string {
	if step.ExpectResult != nil && calc.Result != *step.ExpectResult {
		return fmt.Sprintf("result %s, want %s", calc.Result, *step.ExpectResult)
	}
	if step.Expect != nil {
		if calc.Result != types.Success {
			return fmt.Sprintf("result %s, want value %s", calc.Result, expr.FormatNumber(*step.Expect))
		}
		if !closeEnough(calc.Value, *step.Expect) {
			return fmt.Sprintf("value %s, want %s", expr.FormatNumber(calc.Value), expr.FormatNumber(*step.Expect))
		}
	}
	if !step.HasExpectations() && calc.Result != types.Success {
		return fmt.Sprintf("unexpected %s: %s", calc.Result, calc.Error)
	}
	return ""
}

func closeEnough(got, want float64) bool {
	scale := math.Max(1, math.Max(math.Abs(got), math.Abs(want)))
	return math.Abs(got-want) <= 1e-9*scale
}

// StepCount returns the number of steps executed so far.
func (e *Engine) StepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepCount
}
