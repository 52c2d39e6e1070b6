// Package quotesheet moves batch calculator inputs and results through Excel
// workbooks.
package quotesheet

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/pricelist"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

const (
	resultsSheet = "Расчёт"
	summarySheet = "Итог"
)

// ReadInputs reads the first sheet: variable ids in the header row, one
// calculation per following row. Empty cells keep the declared default.
func ReadInputs(r io.Reader) ([]map[string]any, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("file must contain a header row and at least one data row")
	}

	header := rows[0]
	var inputs []map[string]any
	for _, row := range rows[1:] {
		values := map[string]any{}
		for i, raw := range row {
			if i >= len(header) {
				break
			}
			id := strings.TrimSpace(header[i])
			raw = strings.TrimSpace(raw)
			if id == "" || raw == "" {
				continue
			}
			values[id] = cellValue(raw)
		}
		if len(values) > 0 {
			inputs = append(inputs, values)
		}
	}
	return inputs, nil
}

func cellValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true", "да":
		return true
	case "false", "нет":
		return false
	}
	if d, err := pricelist.ParseAmount(raw); err == nil {
		return d.InexactFloat64()
	}
	return raw
}

// WriteResults renders a batch report: inputs, formula results and problems
// per row on the first sheet, run totals on the second.
func WriteResults(w io.Writer, def *entity.CalculatorDefinition, report *calculator.BatchReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1D4ED8"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	errorStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#DC2626"},
	})
	if err != nil {
		return fmt.Errorf("create error style: %w", err)
	}

	type column struct {
		id, title string
		input     bool
	}
	columns := []column{{id: "#", title: "#"}}
	for _, v := range def.Variables {
		columns = append(columns, column{id: v.ID, title: titled(v.Name, v.ID), input: true})
	}
	for _, fm := range def.Formulas {
		columns = append(columns, column{id: fm.ID, title: titled(fm.Name, fm.ID)})
	}
	for _, el := range def.Elements {
		if fm, ok := el.Formula(); ok {
			columns = append(columns, column{id: fm.ID, title: titled(fm.Name, fm.ID)})
		}
	}
	columns = append(columns, column{id: "!", title: "Ошибки"})

	for i, c := range columns {
		if err := set(f, resultsSheet, i+1, 1, c.title); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(resultsSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for r, row := range report.Rows {
		line := r + 2
		for i, c := range columns {
			var value any
			switch {
			case c.id == "#":
				value = row.Index + 1
			case c.id == "!":
				value = problems(row)
			case row.Snapshot == nil:
				continue
			case c.input:
				value = row.Snapshot.Values[c.id]
			default:
				value = row.Snapshot.Results[c.id]
			}
			if value == nil || value == "" {
				continue
			}
			if err := set(f, resultsSheet, i+1, line, sheetValue(value)); err != nil {
				return err
			}
			if value == calculator.ErrorDisplay || c.id == "!" {
				name, _ := excelize.CoordinatesToCellName(i+1, line)
				_ = f.SetCellStyle(resultsSheet, name, name, errorStyle)
			}
		}
	}
	_ = f.SetPanes(resultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][2]any{
		{"Калькулятор", def.Name},
		{"Запуск", report.RunID.String()},
		{"Строк", report.Processed},
		{"С ошибками", report.Failed},
		{"Время", report.Duration.Round(time.Millisecond).String()},
	}
	for i, kv := range summary {
		if err := set(f, summarySheet, 1, i+1, kv[0]); err != nil {
			return err
		}
		if err := set(f, summarySheet, 2, i+1, kv[1]); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func problems(row calculator.BatchRow) string {
	var parts []string
	if row.Error != "" {
		parts = append(parts, row.Error)
	}
	if row.Snapshot != nil {
		for id, msg := range row.Snapshot.Errors {
			parts = append(parts, id+": "+msg)
		}
		for id, msg := range row.Snapshot.Failures {
			parts = append(parts, id+": "+msg)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// sheetValue keeps numbers, booleans and strings as native cells and
// renders everything else as formula text.
func sheetValue(v any) any {
	switch v.(type) {
	case float64, int, int64, bool, string:
		return v
	}
	return formula.ToString(v)
}

func titled(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

func set(f *excelize.File, sheet string, col, row int, v any) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, name, v); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, name, err)
	}
	return nil
}
