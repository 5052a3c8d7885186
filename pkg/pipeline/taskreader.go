package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrTerminated is raised out of TaskReader.Progress when the user aborts
// the run. The Pipeline Core disposes any open volume and propagates it
// unchanged — it is never turned into a drain.
var ErrTerminated = errors.New("pipeline: terminated")

// TaskReader is the cooperative pause/terminate gate consulted between
// blocks. Stop-after-current is deliberately not observed here: the
// pipeline must keep consuming so upstream can drain cleanly, and is honored
// only at pipeline boundaries, outside this package.
type TaskReader struct {
	mu         sync.Mutex
	paused     chan struct{} // closed while NOT paused; recreated on Pause
	terminated bool
}

// NewTaskReader returns a TaskReader in the running state.
func NewTaskReader() *TaskReader {
	running := make(chan struct{})
	close(running)
	return &TaskReader{paused: running}
}

// Progress blocks while paused, returns immediately while running, and
// returns ErrTerminated once Terminate has been called. It also observes
// ctx cancellation, returning ctx.Err() in that case.
func (t *TaskReader) Progress(ctx context.Context) error {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return ErrTerminated
	}
	gate := t.paused
	t.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	terminated := t.terminated
	t.mu.Unlock()
	if terminated {
		return ErrTerminated
	}
	return nil
}

// Pause blocks subsequent Progress calls until Resume is called.
func (t *TaskReader) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminated {
		return
	}
	select {
	case <-t.paused:
		// currently running; install a fresh, open gate
		t.paused = make(chan struct{})
	default:
		// already paused
	}
}

// Resume releases any Progress call blocked on Pause.
func (t *TaskReader) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminated {
		return
	}
	select {
	case <-t.paused:
		// already running
	default:
		close(t.paused)
	}
}

// Terminate makes every current and future Progress call return
// ErrTerminated, including one currently blocked on Pause.
func (t *TaskReader) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminated {
		return
	}
	t.terminated = true
	select {
	case <-t.paused:
	default:
		close(t.paused)
	}
}
