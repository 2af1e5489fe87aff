// Package provider implements the remote stage of the classification
// pipeline: prompt construction, the provider clients, and the tolerant
// reply parser.
package provider

import (
	"context"
	"errors"
)

// Remote-stage error taxonomy. The pipeline discriminates with
// errors.Is to decide on heuristic fallback; it never retries.
var (
	// ErrUnavailable means the provider has no usable configuration
	// (missing host or credentials). Short-circuits the remote stage.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrRequestFailed covers network, HTTP, and transport-envelope
	// failures on an otherwise configured provider.
	ErrRequestFailed = errors.New("provider request failed")

	// ErrUnparseable means no category object could be recovered from
	// the reply text by any parse attempt.
	ErrUnparseable = errors.New("provider reply unparseable")
)

// Provider sends one classification prompt and returns the raw reply text.
type Provider interface {
	Name() string
	Classify(ctx context.Context, prompt string) (string, error)
}
