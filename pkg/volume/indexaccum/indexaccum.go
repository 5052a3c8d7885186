// Package indexaccum implements the Index Accumulator: a disk-backed,
// append-only sequence of blocklist-hash entries bound 1:1 to the currently
// open block volume. A fresh accumulator is created on every volume
// rotation; the outgoing one travels with the outgoing volume to the
// uploader, which drains and discards it.
package indexaccum

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// Entry is one blocklist-hash record: the content hash and logical size of
// the block, paired with the raw child-hash payload bytes it describes.
type Entry struct {
	HashKey string
	Size    uint64
	Data    []byte
}

// Accumulator is an append-only spill file of Entry records, framed with a
// length prefix so the uploader can round-trip them without ambiguity.
// Not safe for concurrent use; the Pipeline Core owns exactly one per shard.
type Accumulator struct {
	file *os.File
	w    *bufio.Writer
	n    int
}

// New creates a fresh, empty Accumulator backed by a new temp file under
// tempDir (the OS default if empty).
func New(tempDir string) (*Accumulator, error) {
	f, err := os.CreateTemp(tempDir, "blockpack-indexaccum-*.tmp")
	if err != nil {
		return nil, err
	}
	return &Accumulator{
		file: f,
		w:    bufio.NewWriter(f),
	}, nil
}

// Append encodes entry as hash_key (length-prefixed), size, and the raw
// child-hash payload (length-prefixed), and writes it to the spill file.
// Entries are independent: no ordering guarantee is made or required beyond
// arrival order within this accumulator instance.
func (a *Accumulator) Append(entry Entry) error {
	var lenBuf [8]byte

	binary.BigEndian.PutUint32(lenBuf[:4], uint32(len(entry.HashKey)))
	if _, err := a.w.Write(lenBuf[:4]); err != nil {
		return err
	}
	if _, err := a.w.WriteString(entry.HashKey); err != nil {
		return err
	}

	binary.BigEndian.PutUint64(lenBuf[:8], entry.Size)
	if _, err := a.w.Write(lenBuf[:8]); err != nil {
		return err
	}

	binary.BigEndian.PutUint32(lenBuf[:4], uint32(len(entry.Data)))
	if _, err := a.w.Write(lenBuf[:4]); err != nil {
		return err
	}
	if _, err := a.w.Write(entry.Data); err != nil {
		return err
	}

	a.n++
	return nil
}

// Len returns the number of entries appended so far.
func (a *Accumulator) Len() int {
	return a.n
}

// Seal flushes buffered writes and rewinds the file so it's ready to be
// drained via Entries, the state the uploader expects it handed off in.
func (a *Accumulator) Seal() error {
	if err := a.w.Flush(); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return err
	}
	_, err := a.file.Seek(0, io.SeekStart)
	return err
}

// Entries streams the sealed accumulator's entries in arrival order,
// invoking fn for each one. Call Seal before Entries.
func (a *Accumulator) Entries(fn func(Entry) error) error {
	r := bufio.NewReader(a.file)

	for {
		hashKey, size, data, err := readEntry(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(Entry{HashKey: hashKey, Size: size, Data: data}); err != nil {
			return err
		}
	}
}

func readEntry(r io.Reader) (hashKey string, size uint64, data []byte, err error) {
	var lenBuf [8]byte

	if _, err = io.ReadFull(r, lenBuf[:4]); err != nil {
		return "", 0, nil, err
	}
	hashKeyLen := binary.BigEndian.Uint32(lenBuf[:4])
	hashKeyBytes := make([]byte, hashKeyLen)
	if _, err = io.ReadFull(r, hashKeyBytes); err != nil {
		return "", 0, nil, err
	}

	if _, err = io.ReadFull(r, lenBuf[:8]); err != nil {
		return "", 0, nil, err
	}
	size = binary.BigEndian.Uint64(lenBuf[:8])

	if _, err = io.ReadFull(r, lenBuf[:4]); err != nil {
		return "", 0, nil, err
	}
	dataLen := binary.BigEndian.Uint32(lenBuf[:4])
	if dataLen == 0 {
		return string(hashKeyBytes), size, nil, nil
	}
	data = make([]byte, dataLen)
	if _, err = io.ReadFull(r, data); err != nil {
		return "", 0, nil, err
	}

	return string(hashKeyBytes), size, data, nil
}

// Discard releases the spill file without draining it, used when a shard
// shuts down or errors before the bound volume was ever emitted.
func (a *Accumulator) Discard() error {
	name := a.file.Name()
	closeErr := a.file.Close()
	removeErr := os.Remove(name)
	if closeErr != nil {
		return closeErr
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return removeErr
	}
	return nil
}
