package pipeline

import (
	"github.com/blockpack/blockpack/pkg/block"
	"github.com/blockpack/blockpack/pkg/volume"
	"github.com/blockpack/blockpack/pkg/volume/indexaccum"
)

// VolumeUploadRequest is the message a shard places on Output or SpillPickup:
// a Closed volume, optionally paired with the Index Accumulator that
// travelled with it, ready for the uploader to drain and transmit.
type VolumeUploadRequest struct {
	Volume    *volume.Writer
	Close     bool
	IndexAccu *indexaccum.Accumulator
}

// Fabric is the set of typed, bounded channels a Pipeline Core shard reads
// from and writes to. Multiple shards share one Input and one set of sinks;
// each shard owns no channel exclusively.
type Fabric struct {
	Input       <-chan block.Block
	Output      chan<- VolumeUploadRequest
	SpillPickup chan<- VolumeUploadRequest
	Log         chan<- string
}

// Channels owns the backing channels of the Channel Fabric. inputCap,
// outputCap, spillCap, and logCap are independent so a caller can size
// backpressure per concern, mirroring how the teacher's transfer queue sizes
// its upload queue separately from its worker count.
type Channels struct {
	Input       chan block.Block
	Output      chan VolumeUploadRequest
	SpillPickup chan VolumeUploadRequest
	Log         chan string
}

// NewChannels builds the Channel Fabric's backing channels.
func NewChannels(inputCap, outputCap, spillCap, logCap int) *Channels {
	return &Channels{
		Input:       make(chan block.Block, inputCap),
		Output:      make(chan VolumeUploadRequest, outputCap),
		SpillPickup: make(chan VolumeUploadRequest, spillCap),
		Log:         make(chan string, logCap),
	}
}

// ForShard returns the view of the fabric one Pipeline Core instance uses.
// Every shard shares Input, Output, SpillPickup, and Log; only C2/C3 state
// is exclusive per shard.
func (c *Channels) ForShard() Fabric {
	return Fabric{
		Input:       c.Input,
		Output:      c.Output,
		SpillPickup: c.SpillPickup,
		Log:         c.Log,
	}
}

// logf writes a line to the Log channel without blocking the shard if the
// channel is full — observability must never become a backpressure source.
func (f Fabric) logf(line string) {
	select {
	case f.Log <- line:
	default:
	}
}
