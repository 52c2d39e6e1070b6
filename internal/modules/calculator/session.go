package calculator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// ErrorDisplay is shown in place of a formula result that could not be computed.
const ErrorDisplay = "Ошибка"

// Snapshot is the state of a calculator after a recalculation
type Snapshot struct {
	Values   map[string]any    `json:"values"`
	Results  map[string]any    `json:"results"`
	Errors   map[string]string `json:"errors,omitempty"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Failed reports whether any input was rejected or any formula failed.
func (s *Snapshot) Failed() bool {
	return len(s.Errors) > 0 || len(s.Failures) > 0
}

// Session is one interactive calculator: an engine built from a definition
// plus the raw input values and field errors shown to the user.
type Session struct {
	def     *entity.CalculatorDefinition
	engine  *Engine
	timeout time.Duration

	mu     sync.Mutex
	values map[string]any
	errors map[string]string
}

// NewSession builds an engine from def. Variables start at their defaults.
func NewSession(def *entity.CalculatorDefinition, timeout time.Duration, opts ...Option) (*Session, error) {
	s := &Session{
		def:     def,
		engine:  NewEngine(opts...),
		timeout: timeout,
		values:  make(map[string]any, len(def.Variables)),
		errors:  make(map[string]string),
	}

	for _, vd := range def.Variables {
		if err := s.engine.AddVariable(vd.Variable()); err != nil {
			return nil, fmt.Errorf("calculator %s: %w", def.ID, err)
		}
		s.values[vd.ID] = formula.Normalize(vd.DefaultValue)
	}
	for _, f := range def.Formulas {
		if err := s.engine.AddFormula(f); err != nil {
			return nil, fmt.Errorf("calculator %s: %w", def.ID, err)
		}
	}
	for _, el := range def.Elements {
		f, ok := el.Formula()
		if !ok {
			continue
		}
		if err := s.engine.AddFormula(f); err != nil {
			return nil, fmt.Errorf("calculator %s: element %s: %w", def.ID, el.ID, err)
		}
	}
	return s, nil
}

// Engine exposes the underlying engine
func (s *Session) Engine() *Engine {
	return s.engine
}

// Update records the raw input and passes it to the engine. A rejected value
// is kept as the field's input and its message becomes the field error.
// Ids outside the definition are never recorded as inputs.
func (s *Session) Update(id string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[id]; ok {
		s.values[id] = formula.Normalize(value)
	}
	err := s.engine.SetVariable(id, value)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		s.errors[id] = verr.Error()
	case err != nil:
		s.errors[id] = err.Error()
	default:
		delete(s.errors, id)
	}
	return err
}

// Apply updates several inputs in key order and joins their errors.
func (s *Session) Apply(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := s.Update(k, values[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recalculate recomputes every formula within the session timeout.
func (s *Session) Recalculate(ctx context.Context) (*Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	results, runErr := s.engine.RecalculateAll(ctx)

	snap := &Snapshot{
		Results:  make(map[string]any, len(results)),
		Failures: make(map[string]string),
	}
	for id, r := range results {
		if r.Err != nil {
			snap.Results[id] = ErrorDisplay
			snap.Failures[id] = r.Err.Error()
			continue
		}
		snap.Results[id] = formula.JSONSafe(r.Value)
	}

	s.mu.Lock()
	snap.Values = make(map[string]any, len(s.values))
	for k, v := range s.values {
		snap.Values[k] = formula.JSONSafe(v)
	}
	snap.Errors = make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		snap.Errors[k] = v
	}
	s.mu.Unlock()

	if runErr != nil {
		return snap, fmt.Errorf("recalculation of %s interrupted: %w", s.def.ID, runErr)
	}
	return snap, nil
}
