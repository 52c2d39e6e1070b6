package calculator

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// validate runs rules in order and stops at the first failure. min and max
// only apply to numbers, regex only to strings.
func validate(variableID string, value any, rules []entity.ValidationRule) error {
	for _, rule := range rules {
		ok, err := check(value, rule)
		if err != nil {
			return fmt.Errorf("failed to apply %s rule to %s: %w", rule.Type, variableID, err)
		}
		if !ok {
			return &ValidationError{VariableID: variableID, Rule: rule.Type, Message: rule.Message}
		}
	}
	return nil
}

func check(value any, rule entity.ValidationRule) (bool, error) {
	switch rule.Type {
	case entity.RuleRequired:
		return value != nil && value != "", nil

	case entity.RuleMin, entity.RuleMax:
		v, isNum := value.(float64)
		limit, limitIsNum := formula.Normalize(rule.Value).(float64)
		if !isNum || !limitIsNum {
			return true, nil
		}
		if rule.Type == entity.RuleMin {
			return v >= limit, nil
		}
		return v <= limit, nil

	case entity.RuleRegex:
		s, isStr := value.(string)
		pattern, patternIsStr := rule.Value.(string)
		if !isStr || !patternIsStr {
			return true, nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil

	case entity.RuleCustom:
		if rule.Predicate != nil {
			return rule.Predicate(value), nil
		}
		if rule.Expression == "" {
			return true, nil
		}
		return checkExpression(rule.Expression, value)
	}
	return true, nil
}

// checkExpression evaluates a data-authored predicate with the candidate bound to `value`.
func checkExpression(expression string, value any) (bool, error) {
	env := map[string]any{"value": value}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("failed to compile predicate '%s': %w", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate predicate: %w", err)
	}
	return out.(bool), nil
}
