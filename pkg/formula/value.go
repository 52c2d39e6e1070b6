package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind names the dynamic type of a formula value.
type Kind string

const (
	KindNull    Kind = "null"
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindDate    Kind = "date"
)

// KindOf reports the kind of a normalized value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case float64:
		return KindNumber
	case string:
		return KindString
	case bool:
		return KindBoolean
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	case time.Time:
		return KindDate
	}
	return Kind(fmt.Sprintf("%T", v))
}

// Normalize converts Go values into the value set formulas operate on:
// float64, string, bool, []any, map[string]any, time.Time and nil.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, float64, string, bool, time.Time:
		return t
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Normalize(item)
		}
		return out
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return v
}

// ToNumber coerces a value to float64. Strings are parsed, booleans map to
// 0/1, null maps to 0. Anything else reports false.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	case time.Time:
		return float64(t.UnixMilli()), true
	}
	if n, ok := Normalize(v).(float64); ok {
		return n, true
	}
	return math.NaN(), false
}

// ToString renders a value the way string concatenation sees it.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			if item == nil {
				continue
			}
			parts[i] = ToString(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truthy reports whether v counts as true in a condition.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	}
	return true
}

// StrictEqual compares kind and value without coercion. Arrays and objects
// compare by content.
func StrictEqual(a, b any) bool {
	if KindOf(a) != KindOf(b) {
		return false
	}
	switch x := a.(type) {
	case nil:
		return true
	case float64:
		return x == b.(float64)
	case time.Time:
		return x.Equal(b.(time.Time))
	}
	return reflect.DeepEqual(a, b)
}

// Equal compares with numeric coercion between numbers, booleans and numeric strings.
func Equal(a, b any) bool {
	if StrictEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ka, kb := KindOf(a), KindOf(b)
	if ka == KindString && kb == KindString {
		return false
	}
	if ka == KindDate || kb == KindDate {
		ta, okA := ToTime(a)
		tb, okB := ToTime(b)
		return okA && okB && ta.Equal(tb)
	}
	if isScalar(ka) && isScalar(kb) {
		x, okX := ToNumber(a)
		y, okY := ToNumber(b)
		return okX && okY && x == y
	}
	return false
}

func isScalar(k Kind) bool {
	return k == KindNumber || k == KindString || k == KindBoolean
}

// Compare orders two values. Numbers compare numerically, two strings
// lexically, dates chronologically. ok is false for incomparable operands.
func Compare(a, b any) (int, bool) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
	}
	if KindOf(a) == KindDate || KindOf(b) == KindDate {
		ta, okA := ToTime(a)
		tb, okB := ToTime(b)
		if !okA || !okB {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	x, okX := ToNumber(a)
	y, okY := ToNumber(b)
	if !okX || !okY || math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ToTime converts a date value or a date string to time.Time.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// JSONSafe replaces values encoding/json cannot represent. Non-finite numbers
// become nil.
func JSONSafe(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = JSONSafe(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = JSONSafe(item)
		}
		return out
	}
	return v
}

// flatten expands nested arrays into a single list of values.
func flatten(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if arr, ok := a.([]any); ok {
			out = append(out, flatten(arr)...)
			continue
		}
		out = append(out, a)
	}
	return out
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
