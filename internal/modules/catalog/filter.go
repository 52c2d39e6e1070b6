package catalog

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/pkg/formula"
)

// matchProperties reports whether props satisfies every filter entry.
// An array filter matches when it contains the property value, a map with
// min and/or max matches numerically, anything else must be strictly equal.
func matchProperties(props map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got := formula.Normalize(props[key])
		want = formula.Normalize(want)

		switch w := want.(type) {
		case []any:
			found := false
			for _, candidate := range w {
				if formula.StrictEqual(candidate, got) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		case map[string]any:
			lo, hasMin := w["min"]
			hi, hasMax := w["max"]
			if hasMin || hasMax {
				if !inRange(got, lo, hasMin, hi, hasMax) {
					return false
				}
				continue
			}
		}

		if !formula.StrictEqual(got, want) {
			return false
		}
	}
	return true
}

func inRange(value, lo any, hasMin bool, hi any, hasMax bool) bool {
	if value == nil {
		return false
	}
	n, ok := leadingNumber(formula.ToString(value))
	if !ok {
		return false
	}
	if hasMin {
		if lower, ok := formula.ToNumber(lo); ok && n < lower {
			return false
		}
	}
	if hasMax {
		if upper, ok := formula.ToNumber(hi); ok && n > upper {
			return false
		}
	}
	return true
}

// FilterFromArgs builds a ProductFilter from a formula object argument with
// the keys categoryId, priceMin, priceMax, properties, limit and offset.
func FilterFromArgs(args map[string]any) entity.ProductFilter {
	var f entity.ProductFilter
	if s, ok := args["categoryId"].(string); ok && s != "" {
		if id, err := uuid.Parse(s); err == nil {
			f.CategoryID = &id
		} else {
			// an unparseable id matches no product
			none := uuid.Nil
			f.CategoryID = &none
		}
	}
	if v, ok := args["priceMin"]; ok && v != nil {
		if n, ok := formula.ToNumber(v); ok {
			f.PriceMin = &n
		}
	}
	if v, ok := args["priceMax"]; ok && v != nil {
		if n, ok := formula.ToNumber(v); ok {
			f.PriceMax = &n
		}
	}
	if props, ok := args["properties"].(map[string]any); ok {
		f.Properties = props
	}
	if n, ok := formula.ToNumber(args["limit"]); ok && n > 0 {
		f.Limit = int(n)
	}
	if n, ok := formula.ToNumber(args["offset"]); ok && n > 0 {
		f.Offset = int(n)
	}
	return f
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeIdentifier(s string) string {
	return strings.TrimSpace(s)
}
