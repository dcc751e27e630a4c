// Package sink defines the output-device contract the mixer writes
// completed frames to, plus reference implementations.
package sink

import "github.com/fluxmix/mixcore/pkg/audio"

// Sink is the external collaborator a Mixer drains into. Frames arrive
// interleaved at the engine's fixed output format.
type Sink[S audio.Sample] interface {
	// Prepare readies the device for writes, called on the STOPPED→RUNNING
	// transition. Calling Prepare when already prepared must be a no-op.
	Prepare() error
	// Write blocks for up to one period, delivering frames frames of buf.
	// It returns the number of frames actually written, or an error.
	Write(buf []S, frames int) (int, error)
	// Drain instructs the sink to play out any pending frames and then
	// stop, called on the RUNNING→STOPPED idle transition.
	Drain() error
	// Recover is invoked once after a Write failure, attempting to bring
	// the device back to a writable state.
	Recover(cause error) error
	// Close releases the device. Safe to call multiple times.
	Close() error
}
