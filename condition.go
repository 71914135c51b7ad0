package relay

import (
	"fmt"
	"reflect"

	"github.com/ohler55/ojg/jp"
)

// DataTruthy returns a predicate that holds when data[key] is truthy.
func DataTruthy(key string) Predicate {
	return func(data map[string]any) bool {
		return truthy(data[key])
	}
}

// DataEquals returns a predicate that holds when data[key] equals want.
// Numeric values are compared loosely, so an int 3 matches a float64 3
// decoded from YAML or JSON.
func DataEquals(key string, want any) Predicate {
	return func(data map[string]any) bool {
		v, ok := data[key]
		return ok && looseEqual(v, want)
	}
}

// PathTruthy compiles a JSONPath expression and returns a predicate that
// holds when any match against the run's data is truthy.
func PathTruthy(path string) (Predicate, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("relay: invalid path %q: %w", path, err)
	}
	return func(data map[string]any) bool {
		for _, v := range x.Get(data) {
			if truthy(v) {
				return true
			}
		}
		return false
	}, nil
}

// PathEquals compiles a JSONPath expression and returns a predicate that
// holds when any match equals want, with loose numeric comparison.
func PathEquals(path string, want any) (Predicate, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("relay: invalid path %q: %w", path, err)
	}
	return func(data map[string]any) bool {
		for _, v := range x.Get(data) {
			if looseEqual(v, want) {
				return true
			}
		}
		return false
	}, nil
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(data map[string]any) bool {
		return !p(data)
	}
}

// truthy follows the usual scripting rules: nil, false, zero numbers, empty
// strings and empty collections are false, everything else is true. The
// strings "false" and "0" are also false so YAML string flags behave.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array:
			return rv.Len() > 0
		default:
			return true
		}
	}
}

func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
