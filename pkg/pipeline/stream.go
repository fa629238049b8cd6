package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiofx/pkg/analysis"
	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audio/resampler"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	"github.com/xaionaro-go/audiofx/pkg/effectstream"
	"github.com/xaionaro-go/datacounter"
)

// streamBufferFrames is the capacity of the stream buffers, in frames.
const streamBufferFrames = 32

// runStream processes headerless PCM through an EffectStream, so the input
// may be a pipe of unknown length.
func (r *run) runStream(ctx context.Context) error {
	rawFormat, err := r.cfg.RawFormat()
	if err != nil {
		return err
	}

	var input io.Reader = os.Stdin
	if r.cfg.Input != audiofile.StdStream {
		f, err := os.Open(r.cfg.Input)
		if err != nil {
			return fmt.Errorf("%w: unable to open '%s': %w", audiofile.ErrNotFound, r.cfg.Input, err)
		}
		r.onCleanup(func(ctx context.Context) error {
			if err := f.Close(); err != nil {
				return fmt.Errorf("%w: unable to close the input: %w", ErrAudioIO, err)
			}
			return nil
		})
		input = f
	}

	if err := r.loadEffect(ctx, r.cfg.RawChannels); err != nil {
		return err
	}
	info := r.result.Info

	inBufSize := streamBufferFrames * int(info.InputFrameSize) * int(info.InputChannels) * sampleSize
	outBufSize := streamBufferFrames * int(info.OutputFrameSize) * int(info.OutputChannels) * sampleSize
	if uint64(inBufSize+outBufSize) > r.cfg.MaxMemory {
		return fmt.Errorf("%w: the stream buffers need %d bytes, the limit is %d", ErrOutOfMemory, inBufSize+outBufSize, r.cfg.MaxMemory)
	}

	converted, err := resampler.NewResampler(
		resampler.Format{
			Channels:   audio.Channel(r.cfg.RawChannels),
			SampleRate: audio.SampleRate(r.cfg.RawInputSampleRate()),
			PCMFormat:  rawFormat,
		},
		input,
		resampler.Format{
			Channels:   audio.Channel(info.InputChannels),
			SampleRate: audio.SampleRate(info.InputSampleRate),
			PCMFormat:  audio.PCMFormatFloat32LE,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}

	stream, err := effectstream.New(ctx, converted, r.effect, uint(inBufSize), uint(outBufSize), effectstream.Options{
		CompensateLatency: r.cfg.CompensateLatency,
	})
	if err != nil {
		return fmt.Errorf("%w: unable to start the effect stream: %w", ErrEffect, err)
	}
	r.onCleanup(func(ctx context.Context) error {
		return stream.Close()
	})

	w, seeker, err := r.createOutput(ctx)
	if err != nil {
		return err
	}
	if seeker != nil && audiofile.OutputContainer(r.cfg.Output) == audiofile.ContainerWAV {
		if err := r.openOutput(ctx, w, seeker); err != nil {
			return err
		}
		if err := r.copyStreamToSink(ctx, stream); err != nil {
			return err
		}
	} else {
		if err := r.copyStreamToRaw(ctx, stream, w, rawFormat); err != nil {
			return err
		}
	}
	return r.commitOutput(ctx)
}

func (r *run) copyStreamToSink(ctx context.Context, stream io.Reader) error {
	info := r.result.Info
	src, err := audiofile.NewRawSource(stream, nil, audio.PCMFormatFloat32LE, info.OutputChannels, info.OutputSampleRate, -1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	meter, err := analysis.NewMeter(info.OutputSampleRate, info.OutputChannels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	block := effect.NewBuffers(int(info.OutputChannels), int(info.OutputFrameSize))
	kept := make([][]float32, len(block))
	for {
		n, err := src.Read(block)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: unable to read the processed stream: %w", ErrAudioIO, err)
		}
		for ch := range block {
			kept[ch] = block[ch][:n]
		}
		if err := r.sink.Write(kept); err != nil {
			return fmt.Errorf("%w: %w", ErrAudioIO, err)
		}
		if err := meter.Write(kept, n); err != nil {
			return fmt.Errorf("%w: %w", ErrAudioIO, err)
		}
		r.result.SamplesWritten += int64(n)
		r.result.FramesProcessed++
	}
	r.result.Output = meter.Report()
	logger.Infof(ctx, "output: %s", r.result.Output)
	return nil
}

func (r *run) copyStreamToRaw(
	ctx context.Context,
	stream io.Reader,
	w io.Writer,
	format audio.PCMFormat,
) error {
	info := r.result.Info
	converted, err := resampler.NewResampler(
		resampler.Format{
			Channels:   audio.Channel(info.OutputChannels),
			SampleRate: audio.SampleRate(info.OutputSampleRate),
			PCMFormat:  audio.PCMFormatFloat32LE,
		},
		stream,
		resampler.Format{
			Channels:   audio.Channel(info.OutputChannels),
			SampleRate: audio.SampleRate(info.OutputSampleRate),
			PCMFormat:  format,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}

	wc := datacounter.NewWriterCounter(w)
	_, err = io.Copy(wc, converted)
	r.result.BytesWritten = wc.Count()
	r.result.OutputFormat = "raw/" + format.String()
	if err != nil {
		return fmt.Errorf("%w: unable to copy the processed stream: %w", ErrAudioIO, err)
	}
	r.result.SamplesWritten = int64(r.result.BytesWritten / uint64(format.Size()) / uint64(info.OutputChannels))
	logger.Infof(ctx, "wrote %d bytes", r.result.BytesWritten)
	return nil
}
