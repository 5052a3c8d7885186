package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxVolumeSize(t *testing.T) {
	assert.Equal(t, uint64(8976), MaxVolumeSize(10_000))
	assert.Equal(t, uint64(0), MaxVolumeSize(100))
}

func TestShouldRotate_ScenarioFromSpec(t *testing.T) {
	maxSize := MaxVolumeSize(10_000)
	require := assert.New(t)
	require.Equal(uint64(8976), maxSize)

	// Block A (size 8000) against an empty volume is kept.
	require.False(ShouldRotate(0, 8000, maxSize))

	// After A, file_size ~= 8160. Before appending B (size 2000):
	// 8160 + 2000*1.02 = 10200 > 8976 -> rotate.
	fileSizeAfterA := uint64(8160)
	require.True(ShouldRotate(fileSizeAfterA, 2000, maxSize))
}

func TestWorstCase(t *testing.T) {
	assert.Equal(t, uint64(8000*1.02)+BlockCompressionOverhead, WorstCase(8000))
}

func TestShouldRotate_ExactBoundary(t *testing.T) {
	maxSize := uint64(1000)
	// Just under maxSize -> not > maxSize -> no rotate; just over -> rotate.
	assert.False(t, ShouldRotate(0, 980, maxSize)) // 980*1.02 = 999.6 <= 1000
	assert.True(t, ShouldRotate(0, 990, maxSize))  // 990*1.02 = 1009.8 > 1000
}
