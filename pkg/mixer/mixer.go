// Package mixer implements the single-consumer loop that drains every
// active stream's cache, sums volume-scaled contributions into one output
// block, and drives a sink through its STOPPED/RUNNING lifecycle.
package mixer

import (
	"time"

	"github.com/fluxmix/mixcore/pkg/audio"
	"github.com/fluxmix/mixcore/pkg/sink"
	"github.com/fluxmix/mixcore/pkg/stream"
)

// Config carries the tuning the original hardcoded: how many frames to
// pull per stream per tick, how long to sleep while the sink is stopped
// and idle, and how long a running-but-silent sink waits before draining.
type Config struct {
	BlockFrames  int
	TickInterval time.Duration
	MaxSilence   time.Duration
}

type sinkState int

const (
	stateStopped sinkState = iota
	stateRunning
)

// Mixer owns the saturating-mix arithmetic, the output scratch block, and
// the sink lifecycle state machine. It does not own the stream list — the
// caller (the engine) enumerates streams under its own mutex and passes
// them to Tick, satisfying the engine-mutex → cache-input-lock → cache-
// state-mutex ordering without the mixer needing to know about the engine
// mutex at all.
type Mixer[S audio.Sample] struct {
	arith    audio.Arithmetic[S]
	sink     sink.Sink[S]
	cfg      Config
	channels int

	state     sinkState
	idleSince time.Time

	scratch []S
	block   []S
}

// New constructs a Mixer writing channels-wide frames to snk.
func New[S audio.Sample](arith audio.Arithmetic[S], snk sink.Sink[S], channels int, cfg Config) *Mixer[S] {
	return &Mixer[S]{
		arith:    arith,
		sink:     snk,
		cfg:      cfg,
		channels: channels,
		state:    stateStopped,
		scratch:  make([]S, cfg.BlockFrames*channels),
		block:    make([]S, cfg.BlockFrames*channels),
	}
}

// Tick runs one mixer iteration over streams, applying masterVolume as a
// final gain stage on the summed block. It returns a non-nil error only
// when the sink has failed and a single recovery attempt also failed — the
// caller should stop calling Tick in that case.
func (m *Mixer[S]) Tick(streams []*stream.Stream[S], masterVolume int) error {
	for i := range m.block {
		m.block[i] = 0
	}

	outLen := 0
	contributed := false

	for _, s := range streams {
		if s == nil || !s.Playing() || s.EndOfStream() {
			continue
		}

		n, _, err := s.ReadCache(m.scratch, m.cfg.BlockFrames)
		if err != nil {
			s.MarkEnded()
			s.Remove()
			continue
		}
		if n == 0 {
			if s.ConfiguredDelay() > 0 {
				s.MarkBuffering()
			}
			continue
		}

		s.MarkReady()
		volume := s.Volume()
		for f := 0; f < n; f++ {
			for ch := 0; ch < m.channels; ch++ {
				idx := f*m.channels + ch
				scaled := m.arith.Scale(m.scratch[idx], volume)
				m.block[idx] = m.arith.Add(m.block[idx], scaled)
			}
		}
		s.AddPlayed(n)

		if n > outLen {
			outLen = n
		}
		contributed = true
	}

	if contributed {
		for i := 0; i < outLen*m.channels; i++ {
			m.block[i] = m.arith.Scale(m.block[i], masterVolume)
		}
	}

	return m.drive(contributed, outLen)
}

// drive advances the sink state machine and performs the corresponding
// write (or idle sleep, left to the caller's ticker), per the mixer's
// STOPPED/RUNNING contract.
func (m *Mixer[S]) drive(contributed bool, outLen int) error {
	switch m.state {
	case stateStopped:
		if !contributed {
			return nil
		}
		if err := m.sink.Prepare(); err != nil {
			return err
		}
		m.state = stateRunning
		m.idleSince = time.Time{}
		return m.write(outLen)

	case stateRunning:
		if contributed {
			m.idleSince = time.Time{}
			return m.write(outLen)
		}

		if m.idleSince.IsZero() {
			m.idleSince = time.Now()
		}
		if time.Since(m.idleSince) > m.cfg.MaxSilence {
			err := m.sink.Drain()
			m.state = stateStopped
			return err
		}
		return m.write(m.cfg.BlockFrames) // zero-filled, block was pre-cleared
	}
	return nil
}

// write delivers frames of m.block to the sink, attempting one recovery on
// failure before giving up.
func (m *Mixer[S]) write(frames int) error {
	if _, err := m.sink.Write(m.block, frames); err != nil {
		if rerr := m.sink.Recover(err); rerr != nil {
			return rerr
		}
		if _, err := m.sink.Write(m.block, frames); err != nil {
			return err
		}
	}
	return nil
}
