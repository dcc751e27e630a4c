package audio

import "testing"

func TestFormatDescriptorSentinel(t *testing.T) {
	if !(FormatDescriptor{}).IsSentinel() {
		t.Fatal("zero value must be the sentinel")
	}
	if (FormatDescriptor{SampleRate: 44100, Channels: 2}).IsSentinel() {
		t.Fatal("non-zero descriptor must not be the sentinel")
	}
	if (FormatDescriptor{Channels: 2}).IsSentinel() {
		t.Fatal("partially-zero descriptor must not be the sentinel")
	}
}

func TestInt32ArithmeticSaturatesOnAdd(t *testing.T) {
	ar := Int32Arithmetic()

	got := ar.Add(0x70000000, 0x70000000)
	if got != 0x7FFFFFFF {
		t.Fatalf("expected max clamp, got %#x", got)
	}

	got = ar.Add(-0x70000000, -0x70000000)
	if got != -0x80000000 {
		t.Fatalf("expected min clamp, got %#x", got)
	}
}

func TestInt32ArithmeticScale(t *testing.T) {
	ar := Int32Arithmetic()

	if got := ar.Scale(1000, VolumeMax); got != 1000 {
		t.Fatalf("full volume should be identity, got %d", got)
	}
	if got := ar.Scale(1000, 0); got != 0 {
		t.Fatalf("zero volume should silence, got %d", got)
	}
	if got := ar.Scale(1000, 50); got != 500 {
		t.Fatalf("half volume should halve, got %d", got)
	}
}

func TestFloat32ArithmeticSaturatesOnAdd(t *testing.T) {
	ar := Float32Arithmetic()

	if got := ar.Add(0.9, 0.9); got != 1.0 {
		t.Fatalf("expected +1.0 clamp, got %v", got)
	}
	if got := ar.Add(-0.9, -0.9); got != -1.0 {
		t.Fatalf("expected -1.0 clamp, got %v", got)
	}
}

func TestFloat32ArithmeticScale(t *testing.T) {
	ar := Float32Arithmetic()

	if got := ar.Scale(0.5, VolumeMax); got != 0.5 {
		t.Fatalf("full volume should be identity, got %v", got)
	}
	if got := ar.Scale(0.5, 0); got != 0 {
		t.Fatalf("zero volume should silence, got %v", got)
	}
}
