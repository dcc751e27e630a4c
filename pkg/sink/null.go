package sink

import (
	"errors"

	"github.com/fluxmix/mixcore/pkg/audio"
)

var errUnderlyingWriteFailed = errors.New("sink: null sink simulated write failure")

// Null is an in-memory Sink used by tests: it records every block written
// rather than touching a real device.
type Null[S audio.Sample] struct {
	Prepared bool
	Blocks   [][]S
	FailNext bool
	Recovers int
}

func NewNull[S audio.Sample]() *Null[S] {
	return &Null[S]{}
}

func (n *Null[S]) Prepare() error {
	n.Prepared = true
	return nil
}

func (n *Null[S]) Write(buf []S, frames int) (int, error) {
	if n.FailNext {
		n.FailNext = false
		return 0, errUnderlyingWriteFailed
	}
	cp := make([]S, frames)
	copy(cp, buf[:frames])
	n.Blocks = append(n.Blocks, cp)
	return frames, nil
}

func (n *Null[S]) Drain() error {
	n.Prepared = false
	return nil
}

func (n *Null[S]) Recover(cause error) error {
	n.Recovers++
	return nil
}

func (n *Null[S]) Close() error {
	return nil
}
