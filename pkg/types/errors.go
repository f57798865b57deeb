package types

import (
	"errors"
	"fmt"
)

// Error categories. Typed errors below match these with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrProvider   = errors.New("embedding provider error")
	ErrStore      = errors.New("vector store error")
)

// Recoverable conditions reported through counts rather than failures
var (
	ErrTextTooShort       = errors.New("text too short after cleaning")
	ErrMissingCredentials = errors.New("embedding provider credentials not configured")
	ErrEmptyCriteria      = errors.New("at least one delete criterion is required")
)

// ValidationError rejects a malformed chunk, record or filter.
// Index is the position in a batch, or -1 when not applicable.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation failed for record %d: %s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ProviderError reports a failed call to the embedding provider
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// EmbedError is returned when a single text could not be embedded
type EmbedError struct {
	Err error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("failed to embed text: %v", e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// StoreError reports a backing store failure. It is never retried locally.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
