package pulseaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
)

// PlayStream is a started playback; the client belongs to PlayerPCM and
// outlives the stream.
type PlayStream struct {
	*pulse.PlaybackStream
	ctx context.Context
}

func newPlayStream(
	ctx context.Context,
	pulseStream *pulse.PlaybackStream,
) *PlayStream {
	return &PlayStream{
		PlaybackStream: pulseStream,
		ctx:            ctx,
	}
}

// Drain waits until everything read from the source has been played.
func (stream *PlayStream) Drain() error {
	stream.PlaybackStream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("an error occurred during playback: %w", err)
	}
	if stream.Underflow() {
		// the source was slower than the device; audible, but the data is intact
		logger.Warnf(stream.ctx, "the playback buffer ran empty at least once")
	}
	return nil
}

func (stream *PlayStream) Close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("got a panic while closing the playback stream: %v", r)
		}
	}()
	if stream.Running() {
		stream.PlaybackStream.Stop()
	}
	stream.PlaybackStream.Close()
	return nil
}
