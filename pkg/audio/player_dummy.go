package audio

import (
	"context"
	"fmt"
	"io"
	"time"
)

// PlayerPCMDummy stands in when no playback backend is available. It does
// not produce sound but still pulls the whole stream on Drain, so a broken
// source is reported the same way as with a real device.
type PlayerPCMDummy struct{}

var _ PlayerPCM = PlayerPCMDummy{}

func (PlayerPCMDummy) Close() error {
	return nil
}

func (PlayerPCMDummy) Ping(context.Context) error {
	return nil
}

func (PlayerPCMDummy) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	format PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (PlayStream, error) {
	frameSize := int64(format.Size()) * int64(channels)
	if frameSize == 0 {
		return nil, fmt.Errorf("cannot play %d channels of %v", channels, format)
	}
	return &StreamDummy{
		reader:    reader,
		frameSize: frameSize,
	}, nil
}

type StreamDummy struct {
	reader    io.Reader
	frameSize int64
	consumed  int64
}

var _ PlayStream = (*StreamDummy)(nil)

// Drain reads the rest of the stream.
func (s *StreamDummy) Drain() error {
	if s.reader == nil {
		return nil
	}
	n, err := io.Copy(io.Discard, s.reader)
	s.consumed += n
	if err != nil {
		return fmt.Errorf("unable to read the stream: %w", err)
	}
	if s.consumed%s.frameSize != 0 {
		return fmt.Errorf("the stream ended in the middle of a frame: %d bytes with %d bytes per frame", s.consumed, s.frameSize)
	}
	return nil
}

// ConsumedFrames returns the amount of frames pulled so far.
func (s *StreamDummy) ConsumedFrames() int64 {
	return s.consumed / s.frameSize
}

func (s *StreamDummy) Close() error {
	s.reader = nil
	return nil
}
