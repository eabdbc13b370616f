// Package nilcheck detects nil values hidden behind interfaces.
package nilcheck

import "reflect"

// Interface reports whether value is nil, including typed-nil interfaces.
func Interface(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)

	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// Compact returns values without the nil (or typed-nil) entries, preserving order.
func Compact[T any](values []T) []T {
	out := make([]T, 0, len(values))

	for _, v := range values {
		if Interface(v) {
			continue
		}

		out = append(out, v)
	}

	return out
}
