package decode

import (
	"os"
	"testing"

	"github.com/fluxmix/mixcore/pkg/audio"
)

func TestRegistryDispatchesByExtension(t *testing.T) {
	r := NewRegistry[int32]()
	called := false
	r.Register(".pcm", func(path string) (Source[int32], error) {
		called = true
		return nil, nil
	})

	if _, err := r.Open("track.PCM"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected the registered opener to be invoked")
	}
}

func TestRegistryUnknownExtension(t *testing.T) {
	r := NewRegistry[int32]()
	if _, err := r.Open("track.xyz"); err == nil {
		t.Fatal("expected an error for an unregistered extension")
	}
}

func TestSampleFromInt16WidensToFullInt32Range(t *testing.T) {
	if got := sampleFromInt16[int32](32767); got != 32767<<16 {
		t.Fatalf("expected %d, got %d", int32(32767)<<16, got)
	}
	if got := sampleFromInt16[int32](-32768); got != -32768<<16 {
		t.Fatalf("expected %d, got %d", int32(-32768)<<16, got)
	}
}

func TestSampleFromInt16NormalizesToFloatRange(t *testing.T) {
	got := sampleFromInt16[float32](16384)
	if got < 0.49 || got > 0.51 {
		t.Fatalf("expected roughly 0.5, got %v", got)
	}
}

func TestSampleFrom24BitSignExtendsNegatives(t *testing.T) {
	// -1 in 24-bit two's complement: 0xFFFFFF
	got := sampleFrom24Bit[int32]([3]byte{0xFF, 0xFF, 0xFF})
	if got != -1<<8 {
		t.Fatalf("expected %d, got %d", int32(-1)<<8, got)
	}
}

func TestPCMSourceLoopsOnEOF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pcm")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// Two mono 16-bit frames: 100, -100.
	if _, err := f.Write([]byte{100, 0, 156, 255}); err != nil {
		t.Fatal(err)
	}

	src, err := OpenPCM[int32](f.Name(), 8000, 1, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	dst := make([]int32, 2)
	var fmtDesc audio.FormatDescriptor
	n, err := src.Read(dst, &fmtDesc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	if dst[0] != 100<<16 {
		t.Fatalf("expected first sample widened to %d, got %d", int32(100)<<16, dst[0])
	}
	if fmtDesc.SampleRate != 8000 || fmtDesc.Channels != 1 {
		t.Fatalf("unexpected format descriptor: %+v", fmtDesc)
	}

	// The read that hits EOF seeks back to the start but reports what it
	// already decoded this call (zero, here); the call after that is the
	// one that actually delivers the looped frames.
	n2, err := src.Read(dst, &fmtDesc)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("expected the EOF call to report 0 frames, got %d", n2)
	}

	n3, err := src.Read(dst, &fmtDesc)
	if err != nil {
		t.Fatal(err)
	}
	if n3 != 2 || dst[0] != 100<<16 {
		t.Fatalf("expected the next read to deliver the looped frames, got n=%d dst[0]=%d", n3, dst[0])
	}
}
