package pipeline

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
)

// Play plays an audio file through the first available playback backend
// and waits until it is played out.
func Play(ctx context.Context, path string, opts audiofile.OpenOptions) (_err error) {
	logger.Debugf(ctx, "Play(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/Play(ctx, '%s'): %v", path, _err) }()

	src, err := audiofile.Open(path, opts)
	if err != nil {
		return fmt.Errorf("%w: unable to open '%s' for playback: %w", ErrAudioIO, path, err)
	}
	defer src.Close()

	player := audio.NewPlayerAuto(ctx)
	defer player.Close()

	stream, err := player.PlayFloat32(
		ctx,
		audio.SampleRate(src.SampleRate()),
		audio.Channel(src.Channels()),
		audiofile.NewInterleavedReader(src),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	if err := stream.Drain(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: unable to drain the playback stream: %w", ErrAudioIO, err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("%w: unable to close the playback stream: %w", ErrAudioIO, err)
	}
	return nil
}
