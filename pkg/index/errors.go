package index

import "fmt"

// ErrorCode classifies a DatabaseError for callers that need to branch on
// failure kind without string matching.
type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrUnavailable
	ErrConstraintViolation
	ErrNotFound
)

// DatabaseError wraps a backend failure (Badger, Postgres) with a stable
// code and the operation that produced it. The Pipeline Core never inspects
// Code beyond treating any DatabaseError as fatal to its shard.
type DatabaseError struct {
	Code      ErrorCode
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index: %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("index: %s", e.Operation)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError constructs a DatabaseError for the given operation.
func NewDatabaseError(operation string, code ErrorCode, err error) *DatabaseError {
	return &DatabaseError{Operation: operation, Code: code, Err: err}
}

// InvariantViolation signals a response from the index backend that
// violates a protocol invariant (e.g. a negative volume_id from AddBlock) —
// fatal and never retried.
type InvariantViolation struct {
	Operation string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("index: invariant violation in %s: %s", e.Operation, e.Detail)
}
