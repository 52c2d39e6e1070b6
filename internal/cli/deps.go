package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ilramdhan/doorcalc/internal/infrastructure/definitions"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
)

type formulaDeps struct {
	ID           string   `json:"id"`
	Dependencies []string `json:"dependencies"`
}

// NewDepsCmd creates the deps command.
func NewDepsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <definition.yaml>",
		Short: "Show formula dependencies and calculation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definitions.LoadFile(args[0])
			if err != nil {
				return err
			}
			session, err := calculator.NewSession(def, 0, app.engineOptions()...)
			if err != nil {
				return err
			}
			engine := session.Engine()

			order := engine.CalculationOrder()
			deps := make([]formulaDeps, len(order))
			for i, id := range order {
				deps[i] = formulaDeps{ID: id, Dependencies: engine.GetFormulaDependencies(id)}
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(map[string]any{"order": order, "formulas": deps})
			}
			for i, d := range deps {
				if len(d.Dependencies) == 0 {
					fmt.Fprintf(app.Out, "%2d. %s\n", i+1, d.ID)
					continue
				}
				fmt.Fprintf(app.Out, "%2d. %s <- %s\n", i+1, d.ID, strings.Join(d.Dependencies, ", "))
			}
			return nil
		},
	}
}
