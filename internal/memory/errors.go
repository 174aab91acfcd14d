package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/working-memory/internal/store"
	"github.com/rcliao/working-memory/internal/taskgraph"
)

var (
	// ErrValidation marks a request rejected before any store mutation.
	ErrValidation = errors.New("memory: invalid request")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("memory: not found")
	// ErrTransient marks store failures that are safe to retry.
	ErrTransient = errors.New("memory: transient store failure")
	// ErrCycle is returned when a task link would close a dependency cycle.
	ErrCycle = taskgraph.ErrCycle
	// ErrNoEmbedder is returned by operations that need an embedding provider.
	ErrNoEmbedder = errors.New("memory: no embedding provider configured")
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the full set of field errors for a request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "memory: invalid request: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold for field errors.
func (e ValidationErrors) Is(target error) bool { return target == ErrValidation }

// IsRetryable reports whether the caller may retry the operation as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// storeErr maps a store error into the service taxonomy.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrCycle), errors.Is(err, ErrValidation):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
}
