package volume

import "fmt"

// WriteError reports a failure to append to or finalize a volume's
// underlying temp file or encoder. The Pipeline Core treats any WriteError
// surfaced during rotation prep as fatal to the shard: it disposes the
// half-built volume and propagates.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("volume: %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func newWriteError(op string, err error) *WriteError {
	if err == nil {
		return nil
	}
	return &WriteError{Op: op, Err: err}
}

// StateError is returned when a caller invokes a Writer method that isn't
// valid for the volume's current lifecycle state (e.g. AddBlock after Close).
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("volume: %s: invalid in state %s", e.Op, e.State)
}
