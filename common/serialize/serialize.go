package serialize

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/nodewave/flowrunner/common/nodes"
)

// Output renders a node output as a JSON-safe map: timestamps become RFC3339
// strings and sets become sorted string slices. Values that are already
// JSON-safe pass through unchanged, so serializing twice is a no-op.
func Output(out nodes.Output) map[string]any {
	if out == nil {
		return nil
	}
	return Map(out.Fields())
}

// Map serializes every value of a map, stringifying non-string keys
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = Value(v)
	}
	return result
}

// Value converts a single value into a JSON-safe representation
func Value(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(time.RFC3339)
	case nodes.StringSet:
		return val.Values()
	case map[string]any:
		return Map(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = Value(item)
		}
		return items
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	}

	return reflectValue(reflect.ValueOf(v))
}

// reflectValue handles the typed maps and slices the fast paths above miss
func reflectValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Value(rv.Elem().Interface())
	case reflect.Map:
		if isSet(rv) {
			return sortedKeys(rv)
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprintf("%v", iter.Key().Interface())] = Value(iter.Value().Interface())
		}
		return m
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = Value(rv.Index(i).Interface())
		}
		return items
	}
	return rv.Interface()
}

// isSet reports whether rv is a map used as a set: string keys, empty-struct values
func isSet(rv reflect.Value) bool {
	t := rv.Type()
	return t.Key().Kind() == reflect.String &&
		t.Elem().Kind() == reflect.Struct &&
		t.Elem().NumField() == 0
}

func sortedKeys(rv reflect.Value) []string {
	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)
	return keys
}
