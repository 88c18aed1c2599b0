// Package validation holds constructor-time contract checks. A failed check is
// a wiring bug, so it panics instead of returning an error.
package validation

import "fmt"

// AssertNotNil panics when a required dependency is missing.
//
//	validation.AssertNotNil(cfg, "server config")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertPositive panics unless v > 0. Used for pool sizes and timeouts that
// passed config validation but may come from code paths that skip it.
func AssertPositive[N ~int | ~int64](v N, name string) {
	if v <= 0 {
		panic(fmt.Sprintf("critical error: %s must be positive, got %v", name, v))
	}
}
