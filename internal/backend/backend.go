// Package backend wraps the generative text service. The service gives no
// structural guarantees; callers validate the output themselves.
package backend

import (
	"context"
	"fmt"
)

// Generator produces text for a prompt. Implementations must honor context
// cancellation and deadlines; a call that exceeds its deadline fails with
// *Error rather than hanging.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Error reports a failed generation call: transport failure, quota
// exhaustion, or timeout.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("backend: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }
