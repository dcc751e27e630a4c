package decode

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// OpusFrameDecoder decodes individual Opus packets as they arrive over the
// network, for a push-path stream fed one frame at a time rather than from
// a seekable file.
type OpusFrameDecoder[S audio.Sample] struct {
	decoder  *opus.Decoder
	channels int
	pcm16    []int16
}

// NewOpusFrameDecoder builds a decoder for the given rate/channel count.
// Opus only supports 8000, 12000, 16000, 24000, and 48000 Hz.
func NewOpusFrameDecoder[S audio.Sample](sampleRate, channels int) (*OpusFrameDecoder[S], error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("decode: opus decoder: %w", err)
	}
	const maxFrameSamples = 5760 // 120ms at 48kHz, the largest Opus frame
	return &OpusFrameDecoder[S]{
		decoder:  dec,
		channels: channels,
		pcm16:    make([]int16, maxFrameSamples*channels),
	}, nil
}

// Decode converts one Opus packet into interleaved samples.
func (d *OpusFrameDecoder[S]) Decode(frame []byte) ([]S, error) {
	n, err := d.decoder.Decode(frame, d.pcm16)
	if err != nil {
		return nil, fmt.Errorf("decode: opus frame: %w", err)
	}

	out := make([]S, n*d.channels)
	for i := range out {
		out[i] = sampleFromInt16[S](d.pcm16[i])
	}
	return out, nil
}

// Close is a no-op; the underlying decoder holds no OS resources.
func (d *OpusFrameDecoder[S]) Close() error { return nil }
