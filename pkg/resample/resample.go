// Package resample implements the rate/channel conversion stage that sits
// between a Stream's input and its Cache. Linear is the one reference
// implementation the module ships, generalized from a fixed-int32 linear
// interpolator to any sample representation and to either pull or push
// data flow.
package resample

import (
	"errors"
	"sync"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// ErrBothCallbacksSet is returned by Open when both a read and a write
// callback are supplied, or when neither is — exactly one of the two construction paths may be
// active on a given Resampler.
var ErrBothCallbacksSet = errors.New("resample: exactly one of read-cb/write-cb must be set")

// ReadFunc pulls up-to-maxFrames frames of input at in-rate/in-channels,
// mirroring the Cache InputFunc contract one layer upstream.
type ReadFunc[S audio.Sample] func(dst []S, outFmt *audio.FormatDescriptor) (int, error)

// WriteFunc delivers converted frames downstream (typically a Cache.Write
// bound as a method value).
type WriteFunc[S audio.Sample] func(src []S, frames int, format audio.FormatDescriptor) int

// Linear converts interleaved frames between sample rates via linear
// interpolation. It does not convert channel counts: every frame it emits
// carries inChannels samples, whatever outChannels is. It is bound at
// construction to exactly one of a pull path (ReadFunc upstream, Read
// called by a downstream consumer) or a push path (Write called by an
// upstream producer, WriteFunc downstream).
type Linear[S audio.Sample] struct {
	mu sync.Mutex

	inRate, outRate     int
	inChannels, outChan int
	ratio               float64
	position            float64
	// identity is true when no rate conversion is needed at all; the
	// lookahead-frame interpolation below would otherwise permanently
	// strand one frame per call even at a 1:1 ratio, since it always
	// keeps one unconsumed frame in carry as the next interpolation
	// anchor.
	identity bool

	readCb  ReadFunc[S]
	writeCb WriteFunc[S]

	// carry holds frames read from upstream but not yet fully consumed by
	// interpolation, so a Read call spanning multiple upstream pulls can
	// resume mid-frame.
	carry      []S
	carryLen   int
	carryCap   int
	carryFmt   audio.FormatDescriptor
	pendingEOF error
}

// Open constructs a Resampler bound to one production path. Exactly one of
// readCb/writeCb must be non-nil.
func Open[S audio.Sample](inRate, inChannels, outRate, outChannels int, readCb ReadFunc[S], writeCb WriteFunc[S]) (*Linear[S], error) {
	if (readCb == nil) == (writeCb == nil) {
		return nil, ErrBothCallbacksSet
	}

	const carryFrames = 4 // interpolation only ever needs the previous frame plus lookahead
	r := &Linear[S]{
		inRate:     inRate,
		outRate:    outRate,
		inChannels: inChannels,
		outChan:    outChannels,
		ratio:      float64(inRate) / float64(outRate),
		identity:   inRate == outRate && inChannels == outChannels,
		readCb:     readCb,
		writeCb:    writeCb,
		carryCap:   carryFrames,
		carry:      make([]S, carryFrames*inChannels),
	}
	return r, nil
}

// Delay reports the number of input frames currently held pending
// interpolation (not yet emitted downstream or to a Read caller).
func (r *Linear[S]) Delay() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.carryLen
}

// Flush discards any carried input frames and resets interpolation phase.
func (r *Linear[S]) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carryLen = 0
	r.position = 0
	r.pendingEOF = nil
}

// Close releases resources. Resampler holds none beyond its own buffers, so
// this is a no-op kept for symmetry with the rest of the external-interface
// contract.
func (r *Linear[S]) Close() {}

// Read pulls from the upstream ReadFunc and emits up to maxFrames converted
// frames into dst, at out-rate and in-channel width. Valid only on a
// pull-path Resampler.
func (r *Linear[S]) Read(dst []S, maxFrames int, outFmt *audio.FormatDescriptor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readCb == nil {
		return 0, nil
	}

	if r.carryLen == 0 && r.pendingEOF != nil {
		err := r.pendingEOF
		r.pendingEOF = nil
		return 0, err
	}

	if r.identity {
		n, err := r.readCb(dst[:maxFrames*r.inChannels], outFmt)
		return n, err
	}

	produced := 0
	for produced < maxFrames {
		if r.carryLen < 2 {
			if err := r.fillCarry(); err != nil {
				if produced > 0 {
					r.pendingEOF = err
					break
				}
				return 0, err
			}
			if r.carryLen < 2 {
				break // upstream exhausted and we don't have enough to interpolate
			}
		}

		inputIdx := int(r.position)
		if inputIdx >= r.carryLen-1 {
			r.consumeCarry(inputIdx)
			continue
		}

		frac := r.position - float64(inputIdx)
		for ch := 0; ch < r.inChannels; ch++ {
			a := float64(r.carry[inputIdx*r.inChannels+ch])
			b := float64(r.carry[(inputIdx+1)*r.inChannels+ch])
			dst[produced*r.inChannels+ch] = S(a*(1.0-frac) + b*frac)
		}
		produced++
		r.position += r.ratio

		if advance := int(r.position); advance > 0 {
			r.consumeCarry(advance)
			r.position -= float64(advance)
		}
	}

	*outFmt = r.carryFmt
	return produced, nil
}

// fillCarry pulls one more batch from readCb and appends it to the carry
// buffer, up to the buffer's fixed capacity of carryCap frames.
func (r *Linear[S]) fillCarry() error {
	need := r.carryCap - r.carryLen
	if need <= 0 {
		return nil
	}
	scratch := make([]S, need*r.inChannels)
	var fmtBuf audio.FormatDescriptor
	n, err := r.readCb(scratch, &fmtBuf)
	if n > 0 {
		copy(r.carry[r.carryLen*r.inChannels:], scratch[:n*r.inChannels])
		r.carryLen += n
		if !fmtBuf.IsSentinel() {
			r.carryFmt = fmtBuf
		}
	}
	return err
}

// consumeCarry drops the first n frames from the carry buffer.
func (r *Linear[S]) consumeCarry(n int) {
	if n <= 0 {
		return
	}
	if n >= r.carryLen {
		r.carryLen = 0
		return
	}
	copy(r.carry, r.carry[n*r.inChannels:r.carryLen*r.inChannels])
	r.carryLen -= n
}

// Write pushes frames in (typically from Stream.Write) and emits converted
// frames to the downstream WriteFunc. Valid only on a push-path Resampler.
func (r *Linear[S]) Write(src []S, frames int, format audio.FormatDescriptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writeCb == nil {
		return 0
	}

	if !format.IsSentinel() {
		r.carryFmt = format
	}

	if r.identity {
		r.writeCb(src[:frames*r.inChannels], frames, r.carryFmt)
		return frames
	}

	accepted := 0
	out := make([]S, 0, frames*r.inChannels)
	for accepted < frames {
		if r.carryLen < r.carryCap && accepted < frames {
			n := r.carryCap - r.carryLen
			if n > frames-accepted {
				n = frames - accepted
			}
			copy(r.carry[r.carryLen*r.inChannels:], src[accepted*r.inChannels:(accepted+n)*r.inChannels])
			r.carryLen += n
			accepted += n
		}

		for int(r.position) < r.carryLen-1 {
			inputIdx := int(r.position)
			frac := r.position - float64(inputIdx)
			frame := make([]S, r.inChannels)
			for ch := 0; ch < r.inChannels; ch++ {
				a := float64(r.carry[inputIdx*r.inChannels+ch])
				b := float64(r.carry[(inputIdx+1)*r.inChannels+ch])
				frame[ch] = S(a*(1.0-frac) + b*frac)
			}
			out = append(out, frame...)
			r.position += r.ratio
		}

		if advance := int(r.position); advance > 0 {
			r.consumeCarry(advance)
			r.position -= float64(advance)
		}

		if accepted >= frames {
			break
		}
	}

	if len(out) > 0 {
		r.writeCb(out, len(out)/r.inChannels, r.carryFmt)
	}

	return accepted
}
