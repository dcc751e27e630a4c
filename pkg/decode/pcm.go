package decode

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// PCMSource reads raw interleaved little-endian PCM (16- or 24-bit) from a
// file, looping back to the start on EOF.
type PCMSource[S audio.Sample] struct {
	file       *os.File
	bitDepth   int
	sampleRate int
	channels   int
	scratch    []byte
}

// OpenPCM opens path as headerless PCM at the given rate, channel count,
// and bit depth (16 or 24).
func OpenPCM[S audio.Sample](path string, sampleRate, channels, bitDepth int) (*PCMSource[S], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &PCMSource[S]{
		file:       f,
		bitDepth:   bitDepth,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (s *PCMSource[S]) SampleRate() int { return s.sampleRate }
func (s *PCMSource[S]) Channels() int   { return s.channels }
func (s *PCMSource[S]) Close() error    { return s.file.Close() }

// Read fills dst with up to len(dst)/Channels() frames, decoded from the
// underlying PCM bytes.
func (s *PCMSource[S]) Read(dst []S, outFmt *audio.FormatDescriptor) (int, error) {
	bytesPerSample := 2
	if s.bitDepth == 24 {
		bytesPerSample = 3
	}

	need := len(dst) * bytesPerSample
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]

	n, err := io.ReadFull(s.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, err
	}

	decoded := n / bytesPerSample
	for i := 0; i < decoded; i++ {
		if s.bitDepth == 24 {
			dst[i] = sampleFrom24Bit[S]([3]byte{buf[i*3], buf[i*3+1], buf[i*3+2]})
		} else {
			v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
			dst[i] = sampleFromInt16[S](v)
		}
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
			return decoded / s.channels, seekErr
		}
	}

	*outFmt = audio.FormatDescriptor{SampleRate: s.sampleRate, Channels: s.channels}
	return decoded / s.channels, nil
}
