package volume

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Codec is the compression format a Writer streams blocks through. The
// planner (pkg/capacity) treats whichever Codec is in use as a black box
// bound only by its advertised expansion factor; swapping Codec does not
// change Writer's external contract.
type Codec interface {
	// NewEncoder wraps w, returning a WriteCloser whose Close finalizes the
	// stream (flushing any trailing frame) without closing w.
	NewEncoder(w io.Writer) (io.WriteCloser, error)
}

// ZstdCodec is the default Codec, chosen for its balance of ratio and
// streaming throughput on already-deduplicated block data.
type ZstdCodec struct {
	Level zstd.EncoderLevel
}

// NewZstdCodec returns a ZstdCodec at the given compression level, or the
// library default if level is zero.
func NewZstdCodec(level zstd.EncoderLevel) *ZstdCodec {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return &ZstdCodec{Level: level}
}

func (c *ZstdCodec) NewEncoder(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(c.Level))
	if err != nil {
		return nil, err
	}
	return &zstdEncoderCloser{enc: enc}, nil
}

// zstdEncoderCloser adapts *zstd.Encoder.Close (which also closes the
// underlying stream as far as zstd is concerned) to the Codec contract:
// callers only ever wrap a *os.File they own, so finalizing the frame is
// all that is required here.
type zstdEncoderCloser struct {
	enc *zstd.Encoder
}

func (z *zstdEncoderCloser) Write(p []byte) (int, error) {
	return z.enc.Write(p)
}

func (z *zstdEncoderCloser) Close() error {
	return z.enc.Close()
}

// Flush forces buffered bytes out to the underlying writer without ending
// the frame, so file_size reflects the true on-disk size after every block.
func (z *zstdEncoderCloser) Flush() error {
	return z.enc.Flush()
}
