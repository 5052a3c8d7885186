// Package splitter turns a file on disk into a sequence of fixed-size
// candidate block.Block values for the demo CLI. Content hashing and
// chunking policy are explicitly out of scope for the Data Block Processor
// itself (spec.md Non-goals); this package exists only so cmd/blockpack has
// something concrete to feed onto Input.
package splitter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/blockpack/blockpack/pkg/block"
)

// DefaultChunkSize is used when a caller doesn't override it.
const DefaultChunkSize = 4 << 20 // 4MiB

// Options configures File.
type Options struct {
	// ChunkSize is the fixed size of every chunk but the last. Defaults to
	// DefaultChunkSize if zero.
	ChunkSize int
}

// File splits the file at path into fixed-size candidate blocks, calling
// emit once per chunk in order. emit receives a fully populated block.Block
// (HashKey, Size, Data, Completion) ready to place on a pipeline's Input
// channel; the caller owns waiting on Completion.
func File(path string, opts Options, emit func(block.Block) error) error {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("splitter: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	var offset uint64

	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			b := block.Block{
				HashKey:    hashKey(chunk),
				Size:       uint64(n),
				Data:       chunk,
				Offset:     offset,
				Completion: block.NewCompletion(),
			}
			if err := emit(b); err != nil {
				return err
			}
			offset += uint64(n)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("splitter: read %s: %w", path, readErr)
		}
	}
}

// hashKey computes the content-address used as a block's HashKey. Plain
// sha256 over the chunk bytes — the Data Block Processor treats HashKey as
// an opaque identity, never as a hash it recomputes itself.
func hashKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
