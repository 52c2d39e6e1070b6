package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// Result is the outcome of one formula in a full recalculation
type Result struct {
	Value any
	Err   error
}

// Option configures an Engine
type Option func(*Engine)

// WithStrictVariables makes SetVariable fail on unknown ids instead of ignoring them.
func WithStrictVariables() Option {
	return func(e *Engine) { e.strict = true }
}

// WithWorkers bounds how many formulas RecalculateAll computes at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithFunctions adds functions to the library formulas can call.
func WithFunctions(lib formula.Library) Option {
	return func(e *Engine) { e.functions = e.functions.Merge(lib) }
}

// WithLogger sets the logger used for evaluation failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

type compiledRule struct {
	cond, then, els *formula.Program
}

type compiledFormula struct {
	def   entity.Formula
	main  *formula.Program
	rules []compiledRule
	refs  []string

	// first parse failure, reported on every Calculate
	err       error
	errSource string
}

// Engine holds variables and formulas and computes formula results on demand.
// It is safe for concurrent use.
type Engine struct {
	mu          sync.RWMutex
	variables   map[string]*entity.Variable
	variableIDs []string
	formulas    map[string]*compiledFormula
	formulaIDs  []string
	results     map[string]any
	versions    map[string]uint64
	dependents  map[string][]string
	cycles      map[string][]string
	order       []string
	flights     singleflight.Group
	parser      *formula.Parser
	functions   formula.Library
	evaluator   *formula.Evaluator
	strict      bool
	workers     int
	logger      *slog.Logger
}

// NewEngine creates an empty engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		variables:  make(map[string]*entity.Variable),
		formulas:   make(map[string]*compiledFormula),
		results:    make(map[string]any),
		versions:   make(map[string]uint64),
		dependents: make(map[string][]string),
		cycles:     make(map[string][]string),
		parser:     formula.NewParser(),
		functions:  formula.Builtins(),
		workers:    1,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluator = formula.NewEvaluator(e.functions)
	return e
}

// AddVariable registers or replaces a variable. Cached results are dropped.
func (e *Engine) AddVariable(v entity.Variable) error {
	if v.ID == "" {
		return errors.New("variable id is required")
	}
	v.Value = formula.Normalize(v.Value)
	v.Validation = slices.Clone(v.Validation)
	v.Dependencies = slices.Clone(v.Dependencies)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.variables[v.ID]; !exists {
		e.variableIDs = append(e.variableIDs, v.ID)
	}
	e.variables[v.ID] = &v
	e.rebuild()
	e.invalidateAll()
	return nil
}

// SetVariable validates and stores a new value. A failed rule leaves the old
// value in place and returns a *ValidationError. Only formulas that depend on
// the variable lose their cached results.
func (e *Engine) SetVariable(id string, value any) error {
	e.mu.RLock()
	v, ok := e.variables[id]
	var rules []entity.ValidationRule
	if ok {
		rules = v.Validation
	}
	e.mu.RUnlock()

	if !ok {
		if e.strict {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, id)
		}
		return nil
	}

	value = formula.Normalize(value)
	if err := validate(id, value, rules); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.variables[id]; ok {
		v.Value = value
		e.invalidate(closure(e.dependents, id))
	}
	return nil
}

// GetVariables returns the variables in registration order
func (e *Engine) GetVariables() []entity.Variable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]entity.Variable, 0, len(e.variableIDs))
	for _, id := range e.variableIDs {
		out = append(out, *e.variables[id])
	}
	return out
}

// AddFormula registers or replaces a formula. Expressions are parsed here; a
// parse failure is kept and reported by Calculate. Cached results are dropped.
func (e *Engine) AddFormula(f entity.Formula) error {
	if f.ID == "" {
		return errors.New("formula id is required")
	}
	c := e.compile(f)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.formulas[f.ID]; !exists {
		e.formulaIDs = append(e.formulaIDs, f.ID)
	}
	e.formulas[f.ID] = c
	e.rebuild()
	e.invalidateAll()
	return nil
}

// GetFormulas returns the formulas in registration order
func (e *Engine) GetFormulas() []entity.Formula {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]entity.Formula, 0, len(e.formulaIDs))
	for _, id := range e.formulaIDs {
		out = append(out, e.formulas[id].def)
	}
	return out
}

// GetFormulaDependencies returns the registered variables and formulas the
// formula references, in order of first appearance.
func (e *Engine) GetFormulaDependencies(id string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.formulas[id]
	if !ok {
		return []string{}
	}
	deps := make([]string, 0, len(c.refs))
	for _, ref := range c.refs {
		if e.isKnown(ref) {
			deps = append(deps, ref)
		}
	}
	return deps
}

// CalculationOrder returns every formula id with dependencies before dependents.
func (e *Engine) CalculationOrder() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.order)
}

// Calculate returns the formula result, computing it when no valid cached value exists.
func (e *Engine) Calculate(ctx context.Context, id string) (any, error) {
	return e.calculate(ctx, id, nil)
}

// RecalculateAll drops every cached result and computes each formula once.
// A failing formula only affects itself and its dependents. The error is
// non-nil only when ctx ends before the run completes.
func (e *Engine) RecalculateAll(ctx context.Context) (map[string]Result, error) {
	e.mu.Lock()
	e.invalidateAll()
	order := slices.Clone(e.order)
	e.mu.Unlock()

	results := make(map[string]Result, len(order))
	if e.workers <= 1 {
		for _, id := range order {
			if ctx.Err() != nil {
				break
			}
			v, err := e.Calculate(ctx, id)
			results[id] = Result{Value: v, Err: err}
		}
	} else {
		var mu sync.Mutex
		var g errgroup.Group
		g.SetLimit(e.workers)
		for _, id := range order {
			if ctx.Err() != nil {
				break
			}
			id := id
			g.Go(func() error {
				v, err := e.Calculate(ctx, id)
				mu.Lock()
				results[id] = Result{Value: v, Err: err}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		for _, id := range order {
			if _, done := results[id]; !done {
				results[id] = Result{Err: err}
			}
		}
		return results, err
	}
	return results, nil
}

// Evaluate runs an ad hoc expression against the engine's variables and formulas.
func (e *Engine) Evaluate(ctx context.Context, expression string) (any, error) {
	prog, err := e.parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	return e.evaluator.Eval(ctx, prog, e.env(nil))
}

func (e *Engine) calculate(ctx context.Context, id string, path []string) (any, error) {
	e.mu.RLock()
	c, ok := e.formulas[id]
	if !ok {
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormula, id)
	}
	if v, hit := e.results[id]; hit {
		e.mu.RUnlock()
		return v, nil
	}
	version := e.versions[id]
	cycle := e.cycles[id]
	e.mu.RUnlock()

	if cycle == nil && slices.Contains(path, id) {
		cycle = append(slices.Clone(path[slices.Index(path, id):]), id)
	}
	if cycle != nil {
		chain := append(slices.Clone(cycle), cycle[0])
		return nil, e.fail(c, c.def.Expression, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(chain, " -> ")))
	}

	key := id + "@" + strconv.FormatUint(version, 10)
	v, err, _ := e.flights.Do(key, func() (any, error) {
		value, source, err := e.evaluate(ctx, c, append(path[:len(path):len(path)], id))
		if err != nil {
			return nil, e.fail(c, source, err)
		}
		e.mu.Lock()
		if e.versions[id] == version && e.formulas[id] == c {
			e.results[id] = value
		}
		e.mu.Unlock()
		return value, nil
	})
	return v, err
}

// evaluate returns the value and the source text of the expression that produced it.
func (e *Engine) evaluate(ctx context.Context, c *compiledFormula, path []string) (any, string, error) {
	if c.err != nil {
		return nil, c.errSource, c.err
	}
	env := e.env(path)
	if len(c.rules) == 0 {
		v, err := e.evaluator.Eval(ctx, c.main, env)
		return v, c.def.Expression, err
	}

	for i, rule := range c.rules {
		src := c.def.Conditions[i]
		cond, err := e.evaluator.Eval(ctx, rule.cond, env)
		if err != nil {
			// Cancellation and cycles still fail the formula; anything else reads as false.
			if ctx.Err() != nil || errors.Is(err, ErrCircularReference) {
				return nil, src.Condition, err
			}
			e.logger.Warn("condition evaluation failed, treated as false",
				slog.String("formula_id", c.def.ID),
				slog.String("condition", src.Condition),
				slog.Any("error", err),
			)
			cond = false
		}
		if formula.Truthy(cond) {
			v, err := e.evaluator.Eval(ctx, rule.then, env)
			return v, src.Then, err
		}
		if rule.els != nil {
			v, err := e.evaluator.Eval(ctx, rule.els, env)
			return v, src.Else, err
		}
	}
	return nil, "", nil
}

// env resolves variables first, then formulas.
func (e *Engine) env(path []string) formula.Env {
	return formula.EnvFunc(func(ctx context.Context, name string) (any, bool, error) {
		e.mu.RLock()
		v, isVariable := e.variables[name]
		var value any
		if isVariable {
			value = v.Value
		}
		_, isFormula := e.formulas[name]
		e.mu.RUnlock()

		switch {
		case isVariable:
			return value, true, nil
		case isFormula:
			value, err := e.calculate(ctx, name, path)
			return value, true, err
		}
		return nil, false, nil
	})
}

func (e *Engine) fail(c *compiledFormula, source string, err error) error {
	e.logger.Error("formula evaluation failed",
		slog.String("formula_id", c.def.ID),
		slog.String("expression", source),
		slog.Any("error", err),
	)
	return &EvaluationError{FormulaID: c.def.ID, Expression: source, Err: err}
}

func (e *Engine) compile(f entity.Formula) *compiledFormula {
	c := &compiledFormula{def: f}
	seen := map[string]bool{}
	collect := func(p *formula.Program) {
		for _, id := range p.Identifiers() {
			if !seen[id] {
				seen[id] = true
				c.refs = append(c.refs, id)
			}
		}
	}
	parse := func(source string) *formula.Program {
		p, err := e.parser.Parse(source)
		if err != nil {
			if c.err == nil {
				c.err, c.errSource = err, source
			}
			return nil
		}
		collect(p)
		return p
	}

	if len(f.Conditions) == 0 {
		c.main = parse(f.Expression)
		return c
	}
	// With conditions the expression is not evaluated, but its references still count.
	if strings.TrimSpace(f.Expression) != "" {
		if p, err := e.parser.Parse(f.Expression); err == nil {
			collect(p)
		}
	}
	for _, rule := range f.Conditions {
		r := compiledRule{cond: parse(rule.Condition), then: parse(rule.Then)}
		if rule.Else != "" {
			r.els = parse(rule.Else)
		}
		c.rules = append(c.rules, r)
	}
	return c
}

func (e *Engine) isKnown(id string) bool {
	if _, ok := e.variables[id]; ok {
		return true
	}
	_, ok := e.formulas[id]
	return ok
}

// rebuild recomputes the reverse index, evaluation order and cycle map.
// Callers hold the write lock.
func (e *Engine) rebuild() {
	g := &graph{order: e.formulaIDs, edges: make(map[string][]string, len(e.formulas))}
	e.dependents = make(map[string][]string)
	for _, id := range e.formulaIDs {
		for _, ref := range e.formulas[id].refs {
			e.dependents[ref] = append(e.dependents[ref], id)
			if _, shadowed := e.variables[ref]; shadowed {
				continue
			}
			if _, ok := e.formulas[ref]; ok {
				g.edges[id] = append(g.edges[id], ref)
			}
		}
	}
	e.order = g.topoOrder()
	e.cycles = g.blocked()
}

func (e *Engine) invalidateAll() {
	clear(e.results)
	for _, id := range e.formulaIDs {
		e.versions[id]++
	}
}

func (e *Engine) invalidate(ids []string) {
	for _, id := range ids {
		delete(e.results, id)
		e.versions[id]++
	}
}
