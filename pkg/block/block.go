// Package block defines the candidate data block that arrives on the
// pipeline's Input channel, and the completion handshake used to report
// dedup results back to whatever produced the block.
package block

import "sync"

// Completion is a one-shot signal resolved with whether add_block caused a
// new index row (was_new). Only the first Resolve/Abandon call takes effect.
type Completion struct {
	once sync.Once
	ch   chan Result
}

// Result is the outcome delivered to a Completion.
type Result struct {
	WasNew bool
	Err    error
}

// NewCompletion returns a Completion ready to be resolved exactly once and
// observed via Wait.
func NewCompletion() *Completion {
	return &Completion{ch: make(chan Result, 1)}
}

// Resolve fulfils the completion with a dedup outcome. Safe to call exactly
// once; subsequent calls are no-ops.
func (c *Completion) Resolve(wasNew bool) {
	c.once.Do(func() {
		c.ch <- Result{WasNew: wasNew}
		close(c.ch)
	})
}

// Abandon fulfils the completion with an error, used when the pipeline
// throws a non-retirement error and unresolved completions must still be
// released rather than leaked.
func (c *Completion) Abandon(err error) {
	c.once.Do(func() {
		c.ch <- Result{Err: err}
		close(c.ch)
	})
}

// Wait blocks until the completion resolves.
func (c *Completion) Wait() Result {
	return <-c.ch
}

// Block is a transient candidate record arriving on Input.
type Block struct {
	// HashKey is the content hash identity of the block's bytes.
	HashKey string
	// Size is the logical byte length; must be > 0.
	Size uint64
	// Data is the byte region to copy into the volume.
	Data []byte
	// Offset is the source-relative byte offset Data was read from. The
	// volume writer carries it for diagnostics only and always writes the
	// whole of Data; it does not select a sub-range of Data.
	Offset uint64
	// IsBlocklistHashes is true iff Data is itself a list of child block
	// hashes (a "blocklist" block).
	IsBlocklistHashes bool
	// Hint is an opaque compression hint passed through to the volume writer.
	Hint string
	// Completion is resolved exactly once with the dedup outcome.
	Completion *Completion
}
