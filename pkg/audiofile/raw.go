package audiofile

import (
	"fmt"
	"io"

	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audio/planar"
)

// RawSink writes headerless interleaved PCM.
type RawSink struct {
	writer   io.Writer
	format   audio.PCMFormat
	channels uint32
	buf      []byte
	scratch  []byte
}

var _ Sink = (*RawSink)(nil)

func NewRawSink(w io.Writer, format audio.PCMFormat, channels uint32) (*RawSink, error) {
	if format.Size() == 0 {
		return nil, fmt.Errorf("%w: PCM format %v", ErrUnsupported, format)
	}
	return &RawSink{
		writer:   w,
		format:   format,
		channels: channels,
	}, nil
}

func (s *RawSink) Write(src [][]float32) error {
	samples, err := checkShape(src, s.channels)
	if err != nil {
		return err
	}
	size := samples * int(s.channels) * int(s.format.Size())
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	buf := s.buf[:size]
	if err := planar.Encode(buf, s.format, src, samples, &s.scratch); err != nil {
		return fmt.Errorf("unable to encode PCM: %w", err)
	}
	if _, err := s.writer.Write(buf); err != nil {
		return fmt.Errorf("unable to write PCM: %w", err)
	}
	return nil
}

func (s *RawSink) Close() error {
	return nil
}
