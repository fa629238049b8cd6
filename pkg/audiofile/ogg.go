package audiofile

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

type oggSource struct {
	reader   *oggvorbis.Reader
	closer   io.Closer
	channels uint32
	buf      []float32
}

var _ Source = (*oggSource)(nil)

// NewOggSource decodes an Ogg Vorbis stream.
func NewOggSource(r io.Reader, closer io.Closer) (Source, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to initialize a vorbis reader: %w", ErrUnsupported, err)
	}
	if reader.Channels() < 1 {
		return nil, fmt.Errorf("%w: vorbis stream declares %d channels", ErrUnsupported, reader.Channels())
	}
	return &oggSource{
		reader:   reader,
		closer:   closer,
		channels: uint32(reader.Channels()),
	}, nil
}

func (s *oggSource) SampleRate() uint32 { return uint32(s.reader.SampleRate()) }
func (s *oggSource) Channels() uint32   { return s.channels }

func (s *oggSource) Length() int64 {
	if l := s.reader.Length(); l > 0 {
		return l
	}
	return -1
}

func (s *oggSource) Read(dst [][]float32) (int, error) {
	samples, err := checkShape(dst, s.channels)
	if err != nil {
		return 0, err
	}
	want := samples * int(s.channels)
	if cap(s.buf) < want {
		s.buf = make([]float32, want)
	}
	buf := s.buf[:want]

	filled := 0
	for filled < want {
		n, err := s.reader.Read(buf[filled:])
		filled += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("unable to decode vorbis: %w", err)
		}
		if n == 0 {
			break
		}
	}
	frames := filled / int(s.channels)
	if frames == 0 {
		return 0, io.EOF
	}
	for idx := 0; idx < frames; idx++ {
		for ch := range dst {
			dst[ch][idx] = buf[idx*int(s.channels)+ch]
		}
	}
	return frames, nil
}

func (s *oggSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
