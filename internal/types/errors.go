package types

import "errors"

// ErrValidation marks malformed input handed to dedupe or classify.
// A caller bug, never retried. Check with errors.Is.
var ErrValidation = errors.New("invalid input")
