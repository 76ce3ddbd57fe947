package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// SafeAssert performs a type assertion and reports success.
func SafeAssert[T any](value any) (T, bool) {
	if v, ok := value.(T); ok {
		return v, true
	}
	var zero T
	return zero, false
}

// GetMapFieldOr returns m[key] as T, or defaultValue when missing or mistyped.
func GetMapFieldOr[T any](m map[string]any, key string, defaultValue T) T {
	if v, ok := m[key].(T); ok {
		return v
	}
	return defaultValue
}

// FirstString returns the first non-empty value among keys, stringifying
// numbers so numeric ids survive.
func FirstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case fmt.Stringer:
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// FirstValue returns the first present, non-nil value among keys.
func FirstValue(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ToFloat converts JSON numbers and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
