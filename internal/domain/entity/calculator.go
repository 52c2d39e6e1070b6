package entity

// VariableType is the declared type of a variable value
type VariableType string

const (
	TypeNumber  VariableType = "number"
	TypeString  VariableType = "string"
	TypeBoolean VariableType = "boolean"
	TypeArray   VariableType = "array"
	TypeObject  VariableType = "object"
	TypeDate    VariableType = "date"
)

// VariableSource records where a variable value comes from
type VariableSource string

const (
	SourceInput    VariableSource = "input"
	SourceCatalog  VariableSource = "catalog"
	SourceAPI      VariableSource = "api"
	SourceFormula  VariableSource = "formula"
	SourceConstant VariableSource = "constant"
)

// RuleType identifies a validation rule
type RuleType string

const (
	RuleMin      RuleType = "min"
	RuleMax      RuleType = "max"
	RuleRequired RuleType = "required"
	RuleRegex    RuleType = "regex"
	RuleCustom   RuleType = "custom"
)

// ValidationRule is checked before a variable value is committed.
// Custom rules use Predicate when set, otherwise Expression, a boolean
// expr-lang program evaluated with the candidate bound to `value`.
type ValidationRule struct {
	Type       RuleType       `json:"type" yaml:"type"`
	Value      any            `json:"value,omitempty" yaml:"value,omitempty"`
	Message    string         `json:"message" yaml:"message"`
	Expression string         `json:"expression,omitempty" yaml:"expression,omitempty"`
	Predicate  func(any) bool `json:"-" yaml:"-"`
}

// Variable is a named typed value available to formulas
type Variable struct {
	ID           string           `json:"id" yaml:"id"`
	Name         string           `json:"name" yaml:"name"`
	Type         VariableType     `json:"type" yaml:"type"`
	Value        any              `json:"value" yaml:"value"`
	Source       VariableSource   `json:"source" yaml:"source"`
	Validation   []ValidationRule `json:"validation,omitempty" yaml:"validation,omitempty"`
	Dependencies []string         `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ConditionalRule is one guarded branch of a conditional formula
type ConditionalRule struct {
	Condition string `json:"condition" yaml:"condition"`
	Then      string `json:"then" yaml:"then"`
	Else      string `json:"else,omitempty" yaml:"else,omitempty"`
}

// Formula is a named expression, optionally made of conditional branches
type Formula struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Expression  string            `json:"expression" yaml:"expression"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string            `json:"category,omitempty" yaml:"category,omitempty"`
	Variables   []string          `json:"variables,omitempty" yaml:"variables,omitempty"`
	ResultType  VariableType      `json:"result_type,omitempty" yaml:"result_type,omitempty"`
	Conditions  []ConditionalRule `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// VariableDefinition declares a calculator input with its default value
type VariableDefinition struct {
	ID           string           `json:"id" yaml:"id"`
	Name         string           `json:"name" yaml:"name"`
	Type         VariableType     `json:"type" yaml:"type"`
	Source       VariableSource   `json:"source,omitempty" yaml:"source,omitempty"`
	DefaultValue any              `json:"default_value,omitempty" yaml:"default"`
	Unit         string           `json:"unit,omitempty" yaml:"unit,omitempty"`
	Validation   []ValidationRule `json:"validation,omitempty" yaml:"validation,omitempty"`
	Dependencies []string         `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Variable converts the definition into an engine variable holding the default
func (d VariableDefinition) Variable() Variable {
	source := d.Source
	if source == "" {
		source = SourceInput
	}
	return Variable{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Value:        d.DefaultValue,
		Source:       source,
		Validation:   d.Validation,
		Dependencies: d.Dependencies,
	}
}

// ElementTypeFormula marks a page element whose value is computed
const ElementTypeFormula = "formula"

// ElementConfig holds the calculation settings of a page element
type ElementConfig struct {
	Formula   string   `json:"formula,omitempty" yaml:"formula,omitempty"`
	Variables []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
}

// Element is a calculator page element. Formula elements are registered as formulas.
type Element struct {
	ID     string        `json:"id" yaml:"id"`
	Type   string        `json:"type" yaml:"type"`
	Name   string        `json:"name,omitempty" yaml:"name,omitempty"`
	Label  string        `json:"label,omitempty" yaml:"label,omitempty"`
	Config ElementConfig `json:"config" yaml:"config"`
}

// Formula returns the formula an element computes, if any
func (e Element) Formula() (Formula, bool) {
	if e.Type != ElementTypeFormula || e.Config.Formula == "" {
		return Formula{}, false
	}
	name := e.Name
	if name == "" {
		name = e.Label
	}
	return Formula{
		ID:         e.ID,
		Name:       name,
		Expression: e.Config.Formula,
		Variables:  e.Config.Variables,
	}, true
}

// CalculatorDefinition is the configuration a calculator is built from
type CalculatorDefinition struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []VariableDefinition `json:"variables" yaml:"variables"`
	Formulas    []Formula            `json:"formulas" yaml:"formulas"`
	Elements    []Element            `json:"elements,omitempty" yaml:"elements,omitempty"`
}
