package audiofile

import (
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audio/planar"
)

// pcmSource decodes interleaved PCM bytes of a fixed format.
type pcmSource struct {
	reader     io.Reader
	closer     io.Closer
	format     audio.PCMFormat
	channels   uint32
	sampleRate uint32
	length     int64

	buf     []byte
	scratch []byte
}

var _ Source = (*pcmSource)(nil)

func newPCMSource(
	reader io.Reader,
	closer io.Closer,
	format audio.PCMFormat,
	channels uint32,
	sampleRate uint32,
	length int64,
) (*pcmSource, error) {
	if format.Size() == 0 {
		return nil, fmt.Errorf("%w: PCM format %v", ErrUnsupported, format)
	}
	if channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupported, channels, sampleRate)
	}
	return &pcmSource{
		reader:     reader,
		closer:     closer,
		format:     format,
		channels:   channels,
		sampleRate: sampleRate,
		length:     length,
	}, nil
}

func (s *pcmSource) SampleRate() uint32 { return s.sampleRate }
func (s *pcmSource) Channels() uint32   { return s.channels }
func (s *pcmSource) Length() int64      { return s.length }

func (s *pcmSource) Read(dst [][]float32) (int, error) {
	samples, err := checkShape(dst, s.channels)
	if err != nil {
		return 0, err
	}
	frameBytes := int(s.format.Size()) * int(s.channels)
	want := samples * frameBytes
	if cap(s.buf) < want {
		s.buf = make([]byte, want)
	}
	buf := s.buf[:want]

	n, err := io.ReadFull(s.reader, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		// a truncated trailing frame is dropped
		n -= n % frameBytes
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	default:
		return 0, fmt.Errorf("unable to read PCM data: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	read, err := planar.Decode(dst, s.format, buf[:n], &s.scratch)
	if err != nil {
		return 0, fmt.Errorf("unable to decode PCM data: %w", err)
	}
	return read, nil
}

func (s *pcmSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
