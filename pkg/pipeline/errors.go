package pipeline

import "fmt"

// ChannelError reports a failure writing to Output or SpillPickup — a
// closed or permanently-full sink, per the Channel Fabric's contract.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("pipeline: %s channel: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
