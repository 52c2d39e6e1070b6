package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/definitions"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// ErrCalculationFailed is returned after output when an input was rejected
// or a formula could not be computed.
var ErrCalculationFailed = errors.New("calculation finished with errors")

// NewRunCmd creates the run command.
func NewRunCmd(app *App) *cobra.Command {
	var assignments []string

	cmd := &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "Run a calculator definition",
		Long: `Load a calculator definition, apply the values given with --set on top
of the declared defaults and print every input and formula result.

Failed formulas print as "Ошибка"; the command then exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definitions.LoadFile(args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(assignments)
			if err != nil {
				return err
			}

			session, err := calculator.NewSession(def, app.timeout(), app.engineOptions()...)
			if err != nil {
				return err
			}
			_ = session.Apply(values) // field errors are reported in the snapshot
			snap, err := session.Recalculate(cmd.Context())
			if err != nil {
				return err
			}

			if app.JSON {
				if err := json.NewEncoder(app.Out).Encode(snap); err != nil {
					return err
				}
			} else {
				printSnapshot(app.Out, def, snap)
			}
			if snap.Failed() {
				return ErrCalculationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&assignments, "set", nil, "Input value as name=value (repeatable)")
	return cmd
}

func printSnapshot(w io.Writer, def *entity.CalculatorDefinition, snap *calculator.Snapshot) {
	fmt.Fprintf(w, "%s (%s)\n\n", def.Name, def.ID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, v := range def.Variables {
		line := fmt.Sprintf("  %s\t%s\t%s", v.ID, v.Name, formula.ToString(snap.Values[v.ID]))
		if msg, ok := snap.Errors[v.ID]; ok {
			line += "\t! " + msg
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range def.Formulas {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.ID, f.Name, formula.ToString(snap.Results[f.ID]))
	}
	for _, el := range def.Elements {
		if _, ok := el.Formula(); ok {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", el.ID, el.Label, formula.ToString(snap.Results[el.ID]))
		}
	}
	_ = tw.Flush()

	for _, id := range sortedNames(snap.Failures) {
		fmt.Fprintf(w, "\n%s: %s", id, snap.Failures[id])
	}
	if len(snap.Failures) > 0 {
		fmt.Fprintln(w)
	}
}
