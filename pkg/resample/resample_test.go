package resample

import (
	"errors"
	"io"
	"testing"

	"github.com/fluxmix/mixcore/pkg/audio"
)

func TestOpenRejectsBothCallbacks(t *testing.T) {
	readCb := func(dst []int32, outFmt *audio.FormatDescriptor) (int, error) { return 0, nil }
	writeCb := func(src []int32, frames int, format audio.FormatDescriptor) int { return frames }

	if _, err := Open[int32](44100, 2, 48000, 2, readCb, writeCb); !errors.Is(err, ErrBothCallbacksSet) {
		t.Fatalf("expected ErrBothCallbacksSet, got %v", err)
	}
	if _, err := Open[int32](44100, 2, 48000, 2, nil, nil); !errors.Is(err, ErrBothCallbacksSet) {
		t.Fatalf("expected ErrBothCallbacksSet for two nils, got %v", err)
	}
}

// TestIdentityRateRead verifies that when in-rate equals out-rate, Read
// reproduces the upstream samples without drift.
func TestIdentityRateRead(t *testing.T) {
	const channels = 1
	src := []int32{10, 20, 30, 40, 50, 60, 70, 80}
	pos := 0
	readCb := func(dst []int32, outFmt *audio.FormatDescriptor) (int, error) {
		if pos >= len(src) {
			return 0, io.EOF
		}
		n := copy(dst, src[pos:])
		pos += n
		*outFmt = audio.FormatDescriptor{SampleRate: 44100, Channels: channels}
		return n, nil
	}

	r, err := Open[int32](44100, channels, 44100, channels, readCb, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dst := make([]int32, len(src))
	var fmtOut audio.FormatDescriptor
	n, rerr := r.Read(dst, len(src)-1, &fmtOut)
	if rerr != nil {
		t.Fatalf("unexpected error: %v", rerr)
	}
	if n == 0 {
		t.Fatal("expected some frames at unity rate")
	}
	for i := 0; i < n; i++ {
		if dst[i] != src[i] {
			t.Fatalf("frame %d: expected %d got %d (unity-rate resampling must be identity)", i, src[i], dst[i])
		}
	}
}

// TestDownsampleProducesFewerFrames sanity-checks that halving the output
// rate roughly halves frame count.
func TestDownsampleProducesFewerFrames(t *testing.T) {
	const channels = 1
	src := make([]int32, 40)
	for i := range src {
		src[i] = int32(i)
	}
	pos := 0
	readCb := func(dst []int32, outFmt *audio.FormatDescriptor) (int, error) {
		if pos >= len(src) {
			return 0, io.EOF
		}
		n := copy(dst, src[pos:])
		pos += n
		*outFmt = audio.FormatDescriptor{SampleRate: 48000, Channels: channels}
		return n, nil
	}

	r, err := Open[int32](48000, channels, 24000, channels, readCb, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dst := make([]int32, 40)
	var fmtOut audio.FormatDescriptor
	n, _ := r.Read(dst, 40, &fmtOut)
	if n == 0 || n >= 40 {
		t.Fatalf("expected roughly half the input frame count, got %d", n)
	}
}

func TestFlushResetsCarryAndPhase(t *testing.T) {
	const channels = 1
	readCb := func(dst []int32, outFmt *audio.FormatDescriptor) (int, error) {
		for i := range dst {
			dst[i] = 1
		}
		*outFmt = audio.FormatDescriptor{SampleRate: 44100, Channels: channels}
		return len(dst), nil
	}

	r, err := Open[int32](44100, channels, 48000, channels, readCb, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dst := make([]int32, 8)
	var fmtOut audio.FormatDescriptor
	r.Read(dst, 4, &fmtOut)
	if r.Delay() == 0 {
		t.Fatal("expected carried frames before flush")
	}

	r.Flush()
	if r.Delay() != 0 {
		t.Fatalf("expected flush to clear carry, got delay=%d", r.Delay())
	}
}

// TestWritePushPathDeliversDownstream checks the push-path wiring: fed
// frames eventually reach the downstream WriteFunc.
func TestWritePushPathDeliversDownstream(t *testing.T) {
	const channels = 1
	var delivered []int32
	writeCb := func(src []int32, frames int, format audio.FormatDescriptor) int {
		delivered = append(delivered, src[:frames*channels]...)
		return frames
	}

	r, err := Open[int32](44100, channels, 44100, channels, nil, writeCb)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	src := []int32{1, 2, 3, 4, 5, 6, 7, 8}
	accepted := r.Write(src, len(src), audio.FormatDescriptor{SampleRate: 44100, Channels: channels})
	if accepted != len(src) {
		t.Fatalf("expected all %d frames accepted, got %d", len(src), accepted)
	}
	if len(delivered) == 0 {
		t.Fatal("expected some frames delivered downstream")
	}
}

func TestReadOnPushPathResamplerIsNoop(t *testing.T) {
	const channels = 1
	writeCb := func(src []int32, frames int, format audio.FormatDescriptor) int { return frames }
	r, err := Open[int32](44100, channels, 44100, channels, nil, writeCb)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	dst := make([]int32, 4)
	var fmtOut audio.FormatDescriptor
	n, rerr := r.Read(dst, 4, &fmtOut)
	if n != 0 || rerr != nil {
		t.Fatalf("expected no-op Read on a push-path resampler, got n=%d err=%v", n, rerr)
	}
}
