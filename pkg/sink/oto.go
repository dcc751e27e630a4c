package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// ErrFormatMismatch is returned by Prepare when a second Oto sink is
// opened at a different sample rate or channel count than the process-wide
// oto context already in use — oto allows exactly one context per process,
// so a format change requires a process restart.
var ErrFormatMismatch = errors.New("sink: oto supports one output format per process")

var (
	globalOtoMu  sync.Mutex
	globalOtoCtx *oto.Context
	globalRate   int
	globalChans  int
)

// Oto is a Sink backed by github.com/ebitengine/oto/v3. oto only accepts
// signed 16-bit little-endian samples, so frames at the engine's int32 or
// float32 working format are downconverted on write.
type Oto[S audio.Sample] struct {
	sampleRate int
	channels   int
	volume     int

	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	toInt16 func(S) int16
}

// NewOto constructs an Oto sink at the given output format. toInt16
// converts one sample of the engine's working type to the signed 16-bit
// range oto requires.
func NewOto[S audio.Sample](sampleRate, channels int, toInt16 func(S) int16) *Oto[S] {
	return &Oto[S]{
		sampleRate: sampleRate,
		channels:   channels,
		volume:     audio.VolumeMax,
		toInt16:    toInt16,
	}
}

// Prepare creates (or reuses) the process-wide oto context and a persistent
// player fed by an in-process pipe.
func (o *Oto[S]) Prepare() error {
	if o.player != nil {
		return nil
	}

	globalOtoMu.Lock()
	defer globalOtoMu.Unlock()

	if globalOtoCtx != nil {
		if globalRate != o.sampleRate || globalChans != o.channels {
			return ErrFormatMismatch
		}
	} else {
		op := &oto.NewContextOptions{
			SampleRate:   o.sampleRate,
			ChannelCount: o.channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("sink: oto context: %w", err)
		}
		<-readyChan
		globalOtoCtx = ctx
		globalRate = o.sampleRate
		globalChans = o.channels
	}

	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = globalOtoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	return nil
}

// Write downconverts frames*channels samples to int16 and blocks writing
// them through the pipe to the player.
func (o *Oto[S]) Write(buf []S, frames int) (int, error) {
	if o.player == nil {
		return 0, errors.New("sink: write before prepare")
	}

	n := frames * o.channels
	if n > len(buf) {
		n = len(buf)
	}

	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s16 := o.toInt16(buf[i])
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s16))
	}

	if _, err := o.pipeWriter.Write(out); err != nil {
		return 0, fmt.Errorf("sink: pipe write: %w", err)
	}
	return frames, nil
}

// Drain closes the pipe write side so the player finishes any buffered
// audio, then tears the player down; Prepare will recreate it.
func (o *Oto[S]) Drain() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	return nil
}

// Recover reopens the pipe/player pair after a write failure.
func (o *Oto[S]) Recover(cause error) error {
	o.Drain()
	return o.Prepare()
}

// Close tears the sink down and releases the process-wide oto context.
// Suspending the context is the one-time global-state release the oto
// library requires; a process that opens a second Oto sink afterward must
// accept a fresh context at whatever format it requests.
func (o *Oto[S]) Close() error {
	o.Drain()

	globalOtoMu.Lock()
	defer globalOtoMu.Unlock()
	if globalOtoCtx != nil {
		globalOtoCtx.Suspend()
		globalOtoCtx = nil
	}
	return nil
}

// Int32ToInt16 keeps the top 16 bits of a 32-bit saturated sample,
// matching the engine's saturating-integer working format.
func Int32ToInt16(s int32) int16 {
	return int16(s >> 16)
}

// Float32ToInt16 converts a [-1, 1]-clamped float sample to the signed
// 16-bit range.
func Float32ToInt16(s float32) int16 {
	v := s * 32767
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
