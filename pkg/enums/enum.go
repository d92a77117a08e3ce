// Package enums holds the string enumerations persisted in the database and
// exchanged over the API.
package enums

import (
	"fmt"
	"strings"
)

type stringEnum interface {
	~string
	IsValid() bool
}

// parse lowercases and trims raw before checking it against T's values.
func parse[T stringEnum](kind, raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if !v.IsValid() {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", kind, raw)
	}
	return v, nil
}
