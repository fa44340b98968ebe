// Package enums holds the string-backed enumerations stored in the database
// and carried in event payloads.
package enums

import "fmt"

func contains[T ~string](set []T, v T) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}

func parse[T ~string](set []T, raw, label string) (T, error) {
	if v := T(raw); contains(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, raw)
}
