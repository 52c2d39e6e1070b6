// Package pricelist reads supplier price lists from Excel workbooks into
// catalog products and categories.
package pricelist

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
)

// CategorySeparator splits a category path such as "Двери / Межкомнатные".
const CategorySeparator = "/"

// categoryNamespace makes category ids stable across imports of the same path.
var categoryNamespace = uuid.MustParse("5b0f3d8e-6a47-4c1e-9d1f-7f0c2b9a4e11")

// Column headers recognised in the first row, matched case-insensitively.
// Any other non-empty header becomes a product property.
var columnAliases = map[string]string{
	"sku":          "sku",
	"артикул":      "sku",
	"name":         "name",
	"наименование": "name",
	"category":     "category",
	"категория":    "category",
	"price":        "price",
	"цена":         "price",
	"stock":        "stock",
	"остаток":      "stock",
	"images":       "images",
	"изображения":  "images",
}

// RowError is a field-level problem on one spreadsheet row (1-based).
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Import is the result of reading a price list. Rows with errors are
// skipped; the rest are in Products.
type Import struct {
	Categories []*entity.Category
	Products   []*entity.Product
	Errors     []RowError
	TotalRows  int
}

// Read parses the first sheet of an .xlsx workbook.
func Read(r io.Reader) (*Import, error) {
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

	columns := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if known, ok := columnAliases[strings.ToLower(h)]; ok {
			columns[i] = known
			continue
		}
		columns[i] = h
	}
	for _, required := range []string{"sku", "category", "price"} {
		if index(columns, required) < 0 {
			return nil, fmt.Errorf("header row must contain a %s column", required)
		}
	}

	imp := &Import{}
	tree := newCategoryTree()
	seen := map[string]int{}
	now := time.Now().UTC()

	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		imp.TotalRows++

		p, errs := parseRow(rowNum, columns, row)
		if p.SKU != "" {
			if first, dup := seen[p.SKU]; dup {
				errs = append(errs, RowError{Row: rowNum, Field: "sku", Message: fmt.Sprintf("duplicate of row %d", first)})
			} else {
				seen[p.SKU] = rowNum
			}
		}
		if len(errs) > 0 {
			imp.Errors = append(imp.Errors, errs...)
			continue
		}

		p.ID = uuid.New()
		p.CategoryID = tree.add(cell(row, index(columns, "category")))
		p.CreatedAt, p.UpdatedAt = now, now
		imp.Products = append(imp.Products, p)
	}

	imp.Categories = tree.roots
	return imp, nil
}

func parseRow(rowNum int, columns, row []string) (*entity.Product, []RowError) {
	var errs []RowError
	p := &entity.Product{Properties: map[string]any{}}

	for col, name := range columns {
		value := strings.TrimSpace(cell(row, col))
		switch name {
		case "":
		case "sku":
			if value == "" {
				errs = append(errs, RowError{Row: rowNum, Field: "sku", Message: "sku is required"})
			}
			p.SKU = value
		case "name":
			p.Name = value
		case "category":
			if strings.Trim(value, " "+CategorySeparator) == "" {
				errs = append(errs, RowError{Row: rowNum, Field: "category", Message: "category is required"})
			}
		case "price":
			price, err := ParseAmount(value)
			switch {
			case err != nil:
				errs = append(errs, RowError{Row: rowNum, Field: "price", Message: err.Error()})
			case price.IsNegative():
				errs = append(errs, RowError{Row: rowNum, Field: "price", Message: "price cannot be negative"})
			default:
				p.BasePrice = price.Round(2).InexactFloat64()
			}
		case "stock":
			if value == "" {
				continue
			}
			stock, err := ParseAmount(value)
			if err != nil || !stock.IsInteger() {
				errs = append(errs, RowError{Row: rowNum, Field: "stock", Message: "stock must be a whole number"})
				continue
			}
			p.StockQuantity = stock.IntPart()
		case "images":
			for _, url := range strings.Split(value, ",") {
				if url = strings.TrimSpace(url); url != "" {
					p.Images = append(p.Images, url)
				}
			}
		default:
			if value == "" {
				continue
			}
			if n, err := ParseAmount(value); err == nil {
				p.Properties[name] = n.InexactFloat64()
			} else {
				p.Properties[name] = value
			}
		}
	}
	if p.Name == "" {
		p.Name = p.SKU
	}
	return p, errs
}

// ParseAmount reads a number written either as 4500.50 or in the Russian
// style 4 500,50.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("value is empty")
	}
	if !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	return d, nil
}

type categoryTree struct {
	roots []*entity.Category
	byKey map[string]*entity.Category
}

func newCategoryTree() *categoryTree {
	return &categoryTree{byKey: map[string]*entity.Category{}}
}

// add registers every level of path and returns the id of the deepest one.
func (t *categoryTree) add(path string) uuid.UUID {
	var parent *entity.Category
	key := ""
	for _, part := range strings.Split(path, CategorySeparator) {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key += CategorySeparator + strings.ToLower(name)
		c, ok := t.byKey[key]
		if !ok {
			c = &entity.Category{ID: uuid.NewSHA1(categoryNamespace, []byte(key)), Name: name}
			if parent != nil {
				c.ParentID = &parent.ID
				parent.Subcategories = append(parent.Subcategories, c)
			} else {
				t.roots = append(t.roots, c)
			}
			t.byKey[key] = c
		}
		parent = c
	}
	if parent == nil {
		return uuid.Nil
	}
	return parent.ID
}

func index(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
