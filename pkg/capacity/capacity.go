// Package capacity decides when the currently open block volume is full
// given the worst-case expansion of the next candidate block.
//
// The planner never inspects compressed bytes itself — it only trusts the
// monotone cost bound the block volume writer (pkg/volume) promises: after
// accepting a block of logical size n, file_size grows by at most
// n*NonCompressibleExpansionFactor + BlockCompressionOverhead.
package capacity

const (
	// BlockCompressionOverhead is the fixed per-block framing/header cost
	// assumed by the worst-case bound, independent of block size.
	BlockCompressionOverhead = 1024

	// NonCompressibleExpansionFactor bounds how much larger the compressed
	// representation of a block can be than its logical size. 1.02 assumes
	// the compressor is non-expanding "enough" for already-compressed or
	// encrypted input; raise it if a concrete codec can expand further.
	NonCompressibleExpansionFactor = 1.02
)

// MaxVolumeSize returns the threshold file_size must never exceed, derived
// from the configured target volume_size with the header overhead
// pre-subtracted so file_size may fill the entire budget.
func MaxVolumeSize(volumeSize uint64) uint64 {
	if volumeSize < BlockCompressionOverhead {
		return 0
	}
	return volumeSize - BlockCompressionOverhead
}

// WorstCase returns the upper bound on how much file_size will grow if a
// block of the given logical size is appended.
func WorstCase(size uint64) uint64 {
	return uint64(float64(size)*NonCompressibleExpansionFactor) + BlockCompressionOverhead
}

// ShouldRotate reports whether appending a block of size next to a volume
// currently at fileSize would exceed maxVolumeSize, forcing a rotation
// before the block is appended.
func ShouldRotate(fileSize uint64, next uint64, maxVolumeSize uint64) bool {
	projected := float64(fileSize) + float64(next)*NonCompressibleExpansionFactor
	return projected > float64(maxVolumeSize)
}
