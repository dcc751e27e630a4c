package decode

import (
	"io"
	"os"

	"github.com/mewkiz/flac"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// FLACSource streams a decoded FLAC file frame-by-frame, looping back to
// the start on EOF.
type FLACSource[S audio.Sample] struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
}

// OpenFLAC opens path and reads its stream header.
func OpenFLAC[S audio.Sample](path string) (*FLACSource[S], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FLACSource[S]{
		file:       f,
		stream:     stream,
		sampleRate: int(stream.Info.SampleRate),
		channels:   int(stream.Info.NChannels),
		bitDepth:   int(stream.Info.BitsPerSample),
	}, nil
}

func (s *FLACSource[S]) SampleRate() int { return s.sampleRate }
func (s *FLACSource[S]) Channels() int   { return s.channels }
func (s *FLACSource[S]) Close() error    { return s.file.Close() }

// Read decodes successive FLAC frames until dst is full, rewinding to the
// start of the file on EOF and continuing from there.
func (s *FLACSource[S]) Read(dst []S, outFmt *audio.FormatDescriptor) (int, error) {
	written := 0
	for written < len(dst) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
					return written / s.channels, seekErr
				}
				newStream, decErr := flac.New(s.file)
				if decErr != nil {
					return written / s.channels, decErr
				}
				s.stream = newStream
				continue
			}
			return written / s.channels, err
		}

		for i := 0; i < int(frame.BlockSize) && written < len(dst); i++ {
			for ch := 0; ch < s.channels && written < len(dst); ch++ {
				dst[written] = s.widen(frame.Subframes[ch].Samples[i])
				written++
			}
		}
	}

	*outFmt = audio.FormatDescriptor{SampleRate: s.sampleRate, Channels: s.channels}
	return written / s.channels, nil
}

// widen scales a raw FLAC sample (bitDepth significant bits) to S's
// working range.
func (s *FLACSource[S]) widen(raw int32) S {
	switch any(S(0)).(type) {
	case int32:
		shift := 32 - s.bitDepth
		return S(raw << shift)
	case float32:
		full := float32(int32(1) << (s.bitDepth - 1))
		return S(float32(raw) / full)
	default:
		return S(0)
	}
}
