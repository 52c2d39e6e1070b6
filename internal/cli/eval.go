package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// NewEvalCmd creates the eval command.
func NewEvalCmd(app *App) *cobra.Command {
	var assignments []string

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a single expression",
		Long: `Evaluate a single expression against the variables given with --var.

Example:
  calc eval 'if(quantity > 10, basePrice * 0.9, basePrice)' --var basePrice=1000 --var quantity=12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(assignments)
			if err != nil {
				return err
			}

			engine := calculator.NewEngine(app.engineOptions()...)
			for _, name := range sortedNames(values) {
				v := entity.Variable{ID: name, Name: name, Value: values[name], Source: entity.SourceInput}
				if err := engine.AddVariable(v); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if d := app.timeout(); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			result, err := engine.Evaluate(ctx, args[0])
			if err != nil {
				return err
			}
			return printValue(app.Out, app.JSON, result)
		},
	}

	cmd.Flags().StringArrayVar(&assignments, "var", nil, "Variable as name=value (repeatable)")
	return cmd
}

func printValue(w io.Writer, asJSON bool, v any) error {
	if asJSON {
		return json.NewEncoder(w).Encode(map[string]any{"result": formula.JSONSafe(v)})
	}
	_, err := fmt.Fprintln(w, formula.ToString(v))
	return err
}
