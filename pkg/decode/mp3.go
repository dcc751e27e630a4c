package decode

import (
	"encoding/binary"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/fluxmix/mixcore/pkg/audio"
)

// MP3Source streams a decoded MP3 file, looping back to the start on EOF.
// go-mp3 always decodes to 16-bit stereo PCM.
type MP3Source[S audio.Sample] struct {
	file    *os.File
	decoder *gomp3.Decoder
	scratch []byte
}

// OpenMP3 opens path and prepares it for streaming decode.
func OpenMP3[S audio.Sample](path string) (*MP3Source[S], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MP3Source[S]{file: f, decoder: dec}, nil
}

func (s *MP3Source[S]) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3Source[S]) Channels() int   { return 2 }
func (s *MP3Source[S]) Close() error    { return s.file.Close() }

// Read decodes up to len(dst)/2 stereo frames.
func (s *MP3Source[S]) Read(dst []S, outFmt *audio.FormatDescriptor) (int, error) {
	need := len(dst) * 2 // go-mp3 emits int16 samples, 2 bytes each
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]

	n, err := s.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}

	decoded := n / 2
	for i := 0; i < decoded; i++ {
		v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		dst[i] = sampleFromInt16[S](v)
	}

	if err == io.EOF {
		if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
			return decoded / 2, seekErr
		}
		newDec, decErr := gomp3.NewDecoder(s.file)
		if decErr != nil {
			return decoded / 2, decErr
		}
		s.decoder = newDec
	}

	*outFmt = audio.FormatDescriptor{SampleRate: s.decoder.SampleRate(), Channels: 2}
	return decoded / 2, nil
}
