// Package decode turns encoded audio files or network frames into the
// sample streams the rest of the module consumes: a Source feeds a
// pull-path Stream (see pkg/stream.NewPull) directly as its ReadFunc, and a
// FrameDecoder turns one arrived network packet into samples for a
// push-path Stream's Write call.
package decode

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// Source streams decoded frames at its own native rate and channel count,
// matching resample.ReadFunc's signature exactly so it can be handed to
// stream.NewPull without an adapter.
type Source[S audio.Sample] interface {
	Read(dst []S, outFmt *audio.FormatDescriptor) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// Opener constructs a Source from a file path.
type Opener[S audio.Sample] func(path string) (Source[S], error)

// Registry maps a file extension (".mp3", ".flac", ...) to the Opener that
// handles it.
type Registry[S audio.Sample] struct {
	mu      sync.Mutex
	openers map[string]Opener[S]
}

// NewRegistry returns an empty registry.
func NewRegistry[S audio.Sample]() *Registry[S] {
	return &Registry[S]{openers: make(map[string]Opener[S])}
}

// Register binds ext (case-insensitive, with or without a leading dot) to
// open.
func (r *Registry[S]) Register(ext string, open Opener[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[normalizeExt(ext)] = open
}

// Get returns the Opener bound to ext, if any.
func (r *Registry[S]) Get(ext string) (Opener[S], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	open, ok := r.openers[normalizeExt(ext)]
	return open, ok
}

// Open dispatches to the Opener registered for path's extension.
func (r *Registry[S]) Open(path string) (Source[S], error) {
	ext := filepath.Ext(path)
	open, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("decode: no decoder registered for %q", ext)
	}
	return open(path)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FrameDecoder decodes one self-contained encoded frame (an Opus packet, a
// PCM chunk) into samples, for the push path where frames arrive
// individually rather than as a continuous file stream.
type FrameDecoder[S audio.Sample] interface {
	Decode(frame []byte) ([]S, error)
	Close() error
}

// sampleFromInt16 widens a 16-bit PCM sample to S's working range: the
// full int32 range for the integer build (matching sink.Int32ToInt16's
// inverse shift), or the normalized [-1,1] range for the float32 build.
func sampleFromInt16[S audio.Sample](v int16) S {
	switch any(S(0)).(type) {
	case int32:
		return S(int32(v) << 16)
	case float32:
		return S(float32(v) / 32768)
	default:
		return S(0)
	}
}

// sampleFrom24Bit widens a little-endian 24-bit PCM sample to S's working
// range.
func sampleFrom24Bit[S audio.Sample](b [3]byte) S {
	raw := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if raw&0x800000 != 0 {
		raw |= ^0xFFFFFF // sign-extend
	}
	switch any(S(0)).(type) {
	case int32:
		return S(raw << 8)
	case float32:
		return S(float32(raw) / 8388608)
	default:
		return S(0)
	}
}
