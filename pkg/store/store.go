// Package store provides in-memory storage for calculator sessions and
// their calculation history.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/keypad-calc/pkg/expr"
	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// DefaultHistoryLimit is the number of calculations kept per session when
// no limit is configured.
const DefaultHistoryLimit = 100

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// ErrFull is returned when the store already holds MaxSessions sessions.
var ErrFull = errors.New("session limit reached")

// CalculationKind identifies the operation that produced a calculation.
type CalculationKind string

const (
	KindEvaluate CalculationKind = "EVALUATE"
	KindEqual    CalculationKind = "EQUAL"
	KindReset    CalculationKind = "RESET"
)

// Calculation is one entry of a session's history.
type Calculation struct {
	Kind   CalculationKind `json:"kind" yaml:"kind"`
	Input  []string        `json:"input" yaml:"input"`
	Result types.Result    `json:"result" yaml:"result"`
	Value  float64         `json:"value" yaml:"value"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
	Time   time.Time       `json:"time" yaml:"time"`
}

// Session is a named calculator session owning one evaluator.
type Session struct {
	ID         string
	Name       string
	CreateTime time.Time
	UpdateTime time.Time

	mu      sync.Mutex
	eval    *expr.Evaluator
	history []Calculation
	limit   int
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Status       types.Status `json:"status"`
	Value        float64      `json:"value"`
	Equaled      bool         `json:"equaled"`
	LastOperator string       `json:"lastOperator,omitempty"`
	LastOperand  string       `json:"lastOperand,omitempty"`
	Calculations int          `json:"calculations"`
	CreateTime   time.Time    `json:"createTime"`
	UpdateTime   time.Time    `json:"updateTime"`
}

// Options configures a Store.
type Options struct {
	MaxSessions  int // 0 means unlimited
	HistoryLimit int // 0 selects DefaultHistoryLimit
}

// Store is a thread-safe in-memory session store. Each session's evaluator
// is only ever used while holding that session's lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ops      *expr.Registry
	opts     Options

	// OnChange, if set, is called with the session count after every
	// create or delete.
	OnChange func(sessions int)
}

// New creates a new empty store.
func New(opts Options) *Store {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Store{
		sessions: make(map[string]*Session),
		ops:      expr.DefaultOperators(),
		opts:     opts,
	}
}

// Create creates a new session with a fresh evaluator.
func (s *Store) Create(name string) (*Session, error) {
	s.mu.Lock()
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		return nil, fmt.Errorf("creating session: %w (max %d)", ErrFull, s.opts.MaxSessions)
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		Name:       name,
		CreateTime: now,
		UpdateTime: now,
		eval:       expr.NewWithOperators(s.ops),
		limit:      s.opts.HistoryLimit,
	}
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.changed(n)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session '%s': %w", id, ErrNotFound)
	}
	return sess, nil
}

// List returns snapshots of all sessions, oldest first.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreateTime.Equal(sessions[j].CreateTime) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreateTime.Before(sessions[j].CreateTime)
	})

	out := make([]Snapshot, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Snapshot()
	}
	return out
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("session '%s': %w", id, ErrNotFound)
	}
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	s.changed(n)
	return nil
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) changed(n int) {
	if s.OnChange != nil {
		s.OnChange(n)
	}
}

// Evaluate runs the chunks as a fresh expression on the session's
// evaluator.
func (sess *Session) Evaluate(chunks []string) Calculation {
	return sess.do(KindEvaluate, chunks, sess.eval.EvaluateChunks)
}

// EvaluateExpression splits expression on whitespace and runs it as a
// fresh expression.
func (sess *Session) EvaluateExpression(expression string) Calculation {
	return sess.do(KindEvaluate, strings.Fields(expression), func([]string) (float64, error) {
		return sess.eval.Evaluate(expression)
	})
}

// Equal presses "=" on the session's evaluator.
func (sess *Session) Equal(chunks []string) Calculation {
	return sess.do(KindEqual, chunks, sess.eval.EqualChunks)
}

// Reset clears the session's evaluator.
func (sess *Session) Reset() Calculation {
	return sess.do(KindReset, nil, func([]string) (float64, error) {
		sess.eval.Reset()
		return 0, nil
	})
}

func (sess *Session) do(kind CalculationKind, chunks []string, fn func([]string) (float64, error)) Calculation {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	v, err := fn(chunks)
	calc := Calculation{
		Kind:   kind,
		Input:  append([]string{}, chunks...),
		Result: types.ResultOf(err),
		Value:  v,
		Time:   time.Now(),
	}
	if err != nil {
		calc.Error = err.Error()
		calc.Value = sess.eval.Result()
	}

	sess.history = append(sess.history, calc)
	if len(sess.history) > sess.limit {
		sess.history = append(sess.history[:0:0], sess.history[len(sess.history)-sess.limit:]...)
	}
	sess.UpdateTime = calc.Time
	return calc
}

// History returns a copy of the session's calculations, oldest first.
func (sess *Session) History() []Calculation {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make([]Calculation, len(sess.history))
	copy(out, sess.history)
	return out
}

// Snapshot captures the session's current state.
func (sess *Session) Snapshot() Snapshot {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	snap := Snapshot{
		ID:           sess.ID,
		Name:         sess.Name,
		Status:       sess.eval.Status(),
		Value:        sess.eval.Result(),
		Equaled:      sess.eval.Equaled(),
		Calculations: len(sess.history),
		CreateTime:   sess.CreateTime,
		UpdateTime:   sess.UpdateTime,
	}
	if op, ok := sess.eval.LastOperator(); ok {
		snap.LastOperator = op
	}
	if operand, ok := sess.eval.LastOperand(); ok {
		snap.LastOperand = operand.Text
	}
	return snap
}

// Operators returns the operator table shared by the store's sessions.
func (s *Store) Operators() *expr.Registry {
	return s.ops
}
