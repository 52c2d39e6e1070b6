package pricelist

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Прайс"

// Entry is one price list line as a supplier writes it.
type Entry struct {
	SKU        string
	Name       string
	Category   string
	Price      float64
	Stock      int64
	Images     []string
	Properties map[string]any
}

var fixedHeaders = []string{"Артикул", "Наименование", "Категория", "Цена", "Остаток", "Изображения"}

// Write renders entries as a workbook Read accepts. Property columns follow
// the fixed ones in name order.
func Write(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1D4ED8"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	propKeys := propertyKeys(entries)
	headers := append(append([]string{}, fixedHeaders...), propKeys...)
	for i, h := range headers {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	lastCol := strings.TrimRight(last, "0123456789")
	_ = f.SetColWidth(sheetName, "A", lastCol, 18)

	for i, e := range entries {
		row := i + 2
		values := []any{e.SKU, e.Name, e.Category, e.Price, e.Stock, strings.Join(e.Images, ", ")}
		for _, k := range propKeys {
			values = append(values, e.Properties[k])
		}
		for col, v := range values {
			if v == nil {
				continue
			}
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
	}

	_ = f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write price list: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, name, v); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func propertyKeys(entries []Entry) []string {
	seen := map[string]bool{}
	var keys []string
	for _, e := range entries {
		for k := range e.Properties {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{Type: side, Color: "#000000", Style: 1}
	}
	return borders
}
