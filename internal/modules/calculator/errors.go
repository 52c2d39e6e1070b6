package calculator

import (
	"errors"
	"fmt"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownFormula is returned by Calculate for ids that were never registered.
	ErrUnknownFormula = errors.New("unknown formula")
	// ErrUnknownVariable is returned by SetVariable in strict mode.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrEvaluation matches every *EvaluationError.
	ErrEvaluation = errors.New("calculation error")
	// ErrCircularReference is the cause of failures of formulas on or behind a reference cycle.
	ErrCircularReference = errors.New("circular reference")
)

// ValidationError reports the first validation rule a value failed
type ValidationError struct {
	VariableID string
	Rule       entity.RuleType
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("value of %s failed %s rule", e.VariableID, e.Rule)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// EvaluationError reports a formula that could not be computed. The message
// stays generic; the cause is available through errors.Unwrap.
type EvaluationError struct {
	FormulaID  string
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("calculation error (formula %s)", e.FormulaID)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}
