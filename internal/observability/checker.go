package observability

import "context"

// Checker is a dependency probed by the readiness endpoint.
// Check must honor ctx; the probe cancels it after the configured timeout.
type Checker interface {
	// Name identifies the component in the readiness body (e.g. "postgres").
	Name() string
	Check(ctx context.Context) error
}
