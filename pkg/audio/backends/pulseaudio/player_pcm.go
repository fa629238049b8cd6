package pulseaudio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/audiofx/pkg/audio/resampler"
	"github.com/xaionaro-go/audiofx/pkg/audio/types"
)

type PlayerPCM struct {
	PulseClient *pulse.Client
}

var _ types.PlayerPCM = (*PlayerPCM)(nil)

func NewPlayerPCM() (*PlayerPCM, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &PlayerPCM{
		PulseClient: c,
	}, nil
}

func (p *PlayerPCM) Close() error {
	p.PulseClient.Close()
	return nil
}

func (p *PlayerPCM) Ping(context.Context) error {
	_, err := p.PulseClient.DefaultSink()
	return err
}

func (p *PlayerPCM) PlayPCM(
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	bufferSize time.Duration,
	rawReader io.Reader,
) (_ types.PlayStream, _err error) {
	chanMap := proto.ChannelMap{proto.ChannelMono}
	switch channels {
	case 1:
	case 2:
		chanMap = proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", channels)
	}

	if format != types.PCMFormatFloat32LE {
		logger.Debugf(ctx, "converting %v to %v for Pulse", format, types.PCMFormatFloat32LE)
		inFmt := resampler.Format{Channels: channels, SampleRate: sampleRate, PCMFormat: format}
		outFmt := resampler.Format{Channels: channels, SampleRate: sampleRate, PCMFormat: types.PCMFormatFloat32LE}
		converted, err := resampler.NewResampler(inFmt, rawReader, outFmt)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize a converter from %v: %w", format, err)
		}
		rawReader = converted
	}

	stream, err := p.PulseClient.NewPlayback(
		&pulseReader{Reader: rawReader},
		pulse.PlaybackLatency(bufferSize.Seconds()),
		pulse.PlaybackSampleRate(int(sampleRate)),
		pulse.PlaybackChannels(chanMap),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a playback: %w", err)
	}

	stream.Start()
	if stream.Error() != nil {
		return nil, fmt.Errorf("an error occurred during playback: %w", stream.Error())
	}

	return newPlayStream(ctx, stream), nil
}

// pulseReader always feeds little-endian float32 samples.
type pulseReader struct {
	io.Reader
}

var _ pulse.Reader = (*pulseReader)(nil)

func (*pulseReader) Format() byte {
	return proto.FormatFloat32LE
}
