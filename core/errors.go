package core

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when an operation runs before Initialize.
// This is a setup bug, never a runtime condition, so callers must not
// swallow it.
var ErrNotInitialized = errors.New("recall: not initialized")

// ValidationError reports rejected input. The interaction is not recorded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a failure of the underlying log store (unreachable,
// or a write lock not acquired within the bounded timeout). The coordinator
// contains these: a live conversation is never failed by a logging write.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// EmbeddingError wraps a failed embedding computation. The memory insertion
// is skipped atomically; the log write is unaffected.
type EmbeddingError struct {
	Cause error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Cause)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsEmbedding reports whether err is an EmbeddingError.
func IsEmbedding(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee)
}
