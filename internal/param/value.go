package param

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// IsSequence reports whether v is an ordered, indexable collection. Slices
// and arrays qualify; strings do not.
func IsSequence(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// Elements returns the items of a sequence value in order. Non-sequences
// yield nil.
func Elements(v any) []any {
	if !IsSequence(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// ToFloat64 converts numeric values (and booleans, as 1 or 0) to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// FormatValue renders a value compactly. Floats use the shortest
// representation that round-trips, sequences are bracketed.
func FormatValue(v any) string {
	if IsSequence(v) {
		elems := Elements(v)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case nil:
		return "<nil>"
	}
	return fmt.Sprint(v)
}

// cloneValue copies slice storage so that derived parameters never alias
// the caller's data. Arrays are already values.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(cp, rv)
	for i := 0; i < cp.Len(); i++ {
		e := cp.Index(i)
		if e.Kind() == reflect.Interface {
			if e.IsNil() || e.Elem().Kind() != reflect.Slice {
				continue
			}
		} else if e.Kind() != reflect.Slice {
			continue
		}
		e.Set(reflect.ValueOf(cloneValue(e.Interface())))
	}
	return cp.Interface()
}
