package quotesheet

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/modules/calculator"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

func panelDefinition() *entity.CalculatorDefinition {
	return &entity.CalculatorDefinition{
		ID:   "panel",
		Name: "Панель",
		Variables: []entity.VariableDefinition{
			{ID: "width", Name: "Ширина", Type: entity.TypeNumber, DefaultValue: 800, Validation: []entity.ValidationRule{
				{Type: entity.RuleMin, Value: 600, Message: "слишком узко"},
			}},
			{ID: "height", Name: "Высота", Type: entity.TypeNumber, DefaultValue: 2000},
			{ID: "rate", Name: "Цена м²", Type: entity.TypeNumber, DefaultValue: 3000},
		},
		Formulas: []entity.Formula{
			{ID: "area", Name: "Площадь", Expression: "width * height / 1000000"},
			{ID: "price", Name: "Цена", Expression: "area * rate"},
		},
	}
}

func inputWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, v))
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))
	return buf
}

func TestReadInputs(t *testing.T) {
	inputs, err := ReadInputs(inputWorkbook(t, [][]any{
		{"width", "height", "glass", "sku"},
		{1000, "", "да", "DOOR-OAK-001"},
		{},
		{"700,5", 2100, false},
	}))
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, map[string]any{"width": 1000.0, "glass": true, "sku": "DOOR-OAK-001"}, inputs[0])
	assert.Equal(t, map[string]any{"width": 700.5, "height": 2100.0, "glass": false}, inputs[1])

	_, err = ReadInputs(inputWorkbook(t, [][]any{{"width"}}))
	assert.Error(t, err)
}

func TestWriteResults(t *testing.T) {
	def := panelDefinition()
	batch := calculator.NewBatchCalculator(def, 2, time.Second, calculator.WithLogger(logger.Discard()))
	report, err := batch.Run(context.Background(), []map[string]any{
		{"width": 1000},
		{"width": 100},
		{"rate": "много"},
	})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, WriteResults(buf, def, report))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(resultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"#", "Ширина", "Высота", "Цена м²", "Площадь", "Цена", "Ошибки"}, rows[0])
	assert.Equal(t, []string{"1", "1000", "2000", "3000", "2", "6000"}, rows[1])
	assert.Contains(t, rows[2][6], "width: слишком узко")
	assert.Equal(t, calculator.ErrorDisplay, rows[3][5])
	assert.Contains(t, rows[3][6], "price: calculation error (formula price)")

	failed, err := f.GetCellValue(summarySheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", failed)
}
