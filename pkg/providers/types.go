package providers

import (
	"context"
	"errors"
	"fmt"
)

// Generator turns a fully composed prompt into reply text.
//
// A nil error means the backend returned a well-formed success payload; the
// text may still be empty. Backends that answer with an explicit error
// payload return *BackendError. Anything else (transport failures, bodies
// in an unknown shape) is a plain error.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// DisplayName is the backend name shown to users in error replies.
	DisplayName() string
}

// BackendError carries the error message a generation backend reported.
type BackendError struct {
	Backend string
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error: %s", e.Backend, e.Message)
}

// ErrUnknownFormat is returned when a response body matches neither the
// success nor the error shape of the backend.
var ErrUnknownFormat = errors.New("providers: unrecognised response format")
