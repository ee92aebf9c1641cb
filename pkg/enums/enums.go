// Package enums holds the string-backed domain enumerations stored in
// Postgres enum columns and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

// parse returns the member of set equal to raw.
func parse[T ~string](raw string, set []T, kind string) (T, error) {
	if i := slices.Index(set, T(raw)); i >= 0 {
		return set[i], nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
