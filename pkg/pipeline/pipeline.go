// Package pipeline runs the whole processing sequence: create an effect,
// configure and load it, stream the input file through it frame by frame
// and write the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiofx/pkg/analysis"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/config"
	"github.com/xaionaro-go/audiofx/pkg/effect"
)

const (
	sampleSize = 4 // float32

	// alignmentSamples is the length of the head of the input and the
	// output compared to measure their residual misalignment.
	alignmentSamples = 1 << 14
)

// Result describes a successful run.
type Result struct {
	RunID           string
	Info            effect.Info
	FramesProcessed uint64

	// SamplesWritten is per channel.
	SamplesWritten int64

	// BytesWritten is only counted for raw output.
	BytesWritten uint64
	OutputFormat string

	Input  analysis.Report
	Output analysis.Report

	// Alignment of the output relative to the input; only measured if the
	// effect keeps the sample rate.
	Alignment *analysis.Alignment
}

type run struct {
	cfg    config.Config
	result Result

	effect   effect.Effect
	source   audiofile.Source
	output   *audiofile.AtomicFile
	sink     audiofile.Sink
	cleanups []func(ctx context.Context) error
}

// Run executes the whole sequence. Everything acquired is released before
// it returns; on failure no output file is left behind.
func Run(ctx context.Context, cfg config.Config) (_ret Result, _err error) {
	runID := uuid.New().String()
	ctx = logger.CtxWithLogger(ctx, logger.FromCtx(ctx).WithField("run_id", runID))
	logger.Debugf(ctx, "Run(%#+v)", cfg)
	defer func() { logger.Debugf(ctx, "/Run: %v", _err) }()

	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	r := &run{
		cfg:    cfg,
		result: Result{RunID: runID},
	}
	defer func() {
		if err := r.cleanup(ctx); err != nil {
			_err = multierror.Append(_err, err).ErrorOrNil()
		}
		if _err != nil {
			logger.Errorf(ctx, "the run failed with status %s: %v", StatusOf(_err), _err)
			_ret = Result{RunID: runID}
		}
	}()

	if err := r.createEffect(ctx); err != nil {
		return Result{}, err
	}

	if inputContainer(cfg) == audiofile.ContainerRaw {
		if err := r.runStream(ctx); err != nil {
			return Result{}, err
		}
	} else {
		if err := r.runFile(ctx); err != nil {
			return Result{}, err
		}
	}

	if cfg.Play {
		if err := Play(ctx, cfg.Output, r.outputOpenOptions()); err != nil {
			return Result{}, err
		}
	}
	return r.result, nil
}

func inputContainer(cfg config.Config) audiofile.Container {
	if cfg.InputFormat == "" || cfg.InputFormat == audiofile.ContainerAuto {
		return audiofile.DetectContainer(cfg.Input)
	}
	return cfg.InputFormat
}

// outputOpenOptions describes how to read back the written output.
func (r *run) outputOpenOptions() audiofile.OpenOptions {
	if audiofile.OutputContainer(r.cfg.Output) != audiofile.ContainerRaw {
		return audiofile.OpenOptions{}
	}
	format, _ := r.cfg.RawFormat()
	return audiofile.OpenOptions{
		Container:     audiofile.ContainerRaw,
		RawFormat:     format,
		RawChannels:   r.result.Info.OutputChannels,
		RawSampleRate: r.result.Info.OutputSampleRate,
	}
}

func (r *run) onCleanup(fn func(ctx context.Context) error) {
	r.cleanups = append(r.cleanups, fn)
}

// cleanup releases everything in the reverse order of acquisition.
func (r *run) cleanup(ctx context.Context) error {
	var mErr *multierror.Error
	for idx := len(r.cleanups) - 1; idx >= 0; idx-- {
		if err := r.cleanups[idx](ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	r.cleanups = nil
	return mErr.ErrorOrNil()
}

func (r *run) createEffect(ctx context.Context) error {
	eff, err := effect.Create(ctx, r.cfg.Effect)
	if err != nil {
		return fmt.Errorf("%w: unable to create the effect: %w", ErrEffect, err)
	}
	logger.Infof(ctx, "created the effect '%s'", r.cfg.Effect)
	r.effect = eff
	r.onCleanup(func(ctx context.Context) error {
		logger.Infof(ctx, "freeing the effect")
		if err := eff.Close(); err != nil {
			return fmt.Errorf("%w: unable to free the effect: %w", ErrEffect, err)
		}
		return nil
	})

	if err := eff.SetU32(effect.ParamInputSampleRate, r.cfg.SampleRate); err != nil {
		return fmt.Errorf("%w: unable to set the input sample rate: %w", ErrEffect, err)
	}
	switch len(r.cfg.Intensity) {
	case 0:
	case 1:
		err = eff.SetFloat(effect.ParamIntensityRatio, r.cfg.Intensity[0])
	default:
		err = eff.SetFloatList(effect.ParamIntensityRatio, r.cfg.Intensity)
	}
	if err != nil {
		return fmt.Errorf("%w: unable to set the intensity ratio: %w", ErrEffect, err)
	}
	switch len(r.cfg.Models) {
	case 0:
	case 1:
		err = eff.SetString(effect.ParamModelPath, r.cfg.Models[0])
	default:
		err = eff.SetStringList(effect.ParamModelPath, r.cfg.Models)
	}
	if err != nil {
		return fmt.Errorf("%w: unable to set the model path: %w", ErrEffect, err)
	}
	return nil
}

// loadEffect sets the channel count, loads the model and checks the memory
// budget of the frame buffers.
func (r *run) loadEffect(ctx context.Context, channels uint32) error {
	if err := effect.ValidateChannels(channels); err != nil {
		return fmt.Errorf("%w: the input has %d channels: %w", ErrEffect, channels, err)
	}
	if err := r.effect.SetU32(effect.ParamNumInputChannels, channels); err != nil {
		return fmt.Errorf("%w: unable to set the amount of channels: %w", ErrEffect, err)
	}
	if err := r.effect.Load(ctx); err != nil {
		return fmt.Errorf("%w: unable to load the effect: %w", ErrEffect, err)
	}
	info, err := effect.GetInfo(r.effect)
	if err != nil {
		return fmt.Errorf("%w: unable to query the effect: %w", ErrEffect, err)
	}
	r.result.Info = info
	logger.Infof(ctx, "loaded the effect: %d channels, %d Hz -> %d Hz, %d -> %d samples per frame, latency %d samples",
		info.InputChannels, info.InputSampleRate, info.OutputSampleRate,
		info.InputFrameSize, info.OutputFrameSize, info.LatencySamples)

	frameBytes := uint64(sampleSize) * (uint64(info.InputChannels)*uint64(info.InputFrameSize) +
		uint64(info.OutputChannels)*uint64(info.OutputFrameSize))
	if frameBytes > r.cfg.MaxMemory {
		return fmt.Errorf("%w: the frame buffers need %d bytes, the limit is %d", ErrOutOfMemory, frameBytes, r.cfg.MaxMemory)
	}
	logger.Infof(ctx, "allocating %d bytes for the frame buffers", frameBytes)
	return nil
}

func (r *run) openInput(ctx context.Context) error {
	src, err := audiofile.Open(r.cfg.Input, audiofile.OpenOptions{
		Container: r.cfg.InputFormat,
	})
	if err != nil {
		return fmt.Errorf("%w: unable to open the input: %w", ErrAudioIO, err)
	}
	r.source = src
	r.onCleanup(func(ctx context.Context) error {
		if r.source == nil {
			return nil
		}
		if err := r.source.Close(); err != nil {
			return fmt.Errorf("%w: unable to close the input: %w", ErrAudioIO, err)
		}
		return nil
	})
	logger.Infof(ctx, "opened '%s': %d channels at %d Hz, %d samples", r.cfg.Input, src.Channels(), src.SampleRate(), src.Length())

	if r.cfg.WholeFile {
		if l := src.Length(); l > 0 && uint64(l)*uint64(src.Channels())*sampleSize > r.cfg.MaxMemory {
			return fmt.Errorf("%w: the input needs %d bytes, the limit is %d", ErrOutOfMemory, uint64(l)*uint64(src.Channels())*sampleSize, r.cfg.MaxMemory)
		}
		buffered, err := audiofile.ReadAll(src, int64(r.cfg.MaxMemory/sampleSize))
		r.source = nil
		if err != nil {
			return fmt.Errorf("%w: unable to read the input: %w", ErrAudioIO, err)
		}
		r.source = buffered
		logger.Infof(ctx, "read the whole input: %d samples", buffered.Length())
	}

	if src.SampleRate() != r.cfg.SampleRate {
		resampled, err := audiofile.NewResampledSource(r.source, r.cfg.SampleRate)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAudioIO, err)
		}
		logger.Infof(ctx, "resampling the input from %d Hz to %d Hz", src.SampleRate(), r.cfg.SampleRate)
		r.source = resampled
	}
	return nil
}

func (r *run) openOutput(ctx context.Context, w io.Writer, seeker io.WriteSeeker) error {
	info := r.result.Info
	if seeker != nil && audiofile.OutputContainer(r.cfg.Output) == audiofile.ContainerWAV {
		sink, err := audiofile.NewWAVSink(seeker, info.OutputSampleRate, info.OutputChannels, r.cfg.OutputFormat)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAudioIO, err)
		}
		r.sink = sink
		r.result.OutputFormat = "wav/" + string(r.cfg.OutputFormat)
		return nil
	}
	format, err := r.cfg.RawFormat()
	if err != nil {
		return err
	}
	sink, err := audiofile.NewRawSink(w, format, info.OutputChannels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	r.sink = sink
	r.result.OutputFormat = "raw/" + format.String()
	return nil
}

// createOutput opens the destination; a file is created under a temporary
// name and renamed by commitOutput.
func (r *run) createOutput(ctx context.Context) (io.Writer, io.WriteSeeker, error) {
	if r.cfg.Output == audiofile.StdStream {
		return os.Stdout, nil, nil
	}
	f, err := audiofile.CreateAtomic(r.cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	r.output = f
	r.onCleanup(func(ctx context.Context) error {
		if err := f.Abort(); err != nil {
			return fmt.Errorf("%w: unable to remove the incomplete output: %w", ErrAudioIO, err)
		}
		return nil
	})
	logger.Infof(ctx, "writing '%s'", r.cfg.Output)
	return f, f, nil
}

func (r *run) commitOutput(ctx context.Context) error {
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			return fmt.Errorf("%w: %w", ErrAudioIO, err)
		}
	}
	if r.output == nil {
		return nil
	}
	if err := r.output.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	logger.Infof(ctx, "wrote '%s'", r.cfg.Output)
	return nil
}

func (r *run) runFile(ctx context.Context) error {
	if err := r.openInput(ctx); err != nil {
		return err
	}
	if err := r.loadEffect(ctx, r.source.Channels()); err != nil {
		return err
	}
	w, seeker, err := r.createOutput(ctx)
	if err != nil {
		return err
	}
	if err := r.openOutput(ctx, w, seeker); err != nil {
		return err
	}
	if err := r.processFrames(ctx); err != nil {
		return err
	}
	return r.commitOutput(ctx)
}

// processFrames is the frame loop: read, run, write.
func (r *run) processFrames(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "processFrames")
	defer func() { logger.Tracef(ctx, "/processFrames: %v", _err) }()

	info := r.result.Info
	input := effect.NewBuffers(int(info.InputChannels), int(info.InputFrameSize))
	output := effect.NewBuffers(int(info.OutputChannels), int(info.OutputFrameSize))
	kept := make([][]float32, info.OutputChannels)
	window := effect.NewOutputWindow(info, r.cfg.CompensateLatency)

	inMeter, err := analysis.NewMeter(info.InputSampleRate, info.InputChannels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}
	outMeter, err := analysis.NewMeter(info.OutputSampleRate, info.OutputChannels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioIO, err)
	}

	measureAlignment := info.InputSampleRate == info.OutputSampleRate
	var inHead, outHead []float32

	for !window.Done() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrEffect, ctx.Err())
		default:
		}

		n, err := r.source.Read(input)
		switch {
		case errors.Is(err, io.EOF):
			n = 0
		case err != nil:
			return fmt.Errorf("%w: unable to read frame #%d: %w", ErrAudioIO, r.result.FramesProcessed, err)
		}
		for ch := range input {
			clear(input[ch][n:])
		}
		if n > 0 {
			if err := inMeter.Write(input, n); err != nil {
				return fmt.Errorf("%w: %w", ErrAudioIO, err)
			}
			if measureAlignment {
				inHead = appendMono(inHead, input, n)
			}
			window.AddInput(n)
		}
		if n < int(info.InputFrameSize) {
			window.Finish()
			if n == 0 && window.Done() {
				break
			}
		}

		if err := r.effect.Run(ctx, input, output); err != nil {
			return fmt.Errorf("%w: unable to run the effect on frame #%d: %w", ErrEffect, r.result.FramesProcessed, err)
		}
		r.result.FramesProcessed++

		from, to := window.Keep(int(info.OutputFrameSize))
		if from == to {
			continue
		}
		for ch := range output {
			kept[ch] = output[ch][from:to]
		}
		if err := r.sink.Write(kept); err != nil {
			return fmt.Errorf("%w: unable to write frame #%d: %w", ErrAudioIO, r.result.FramesProcessed, err)
		}
		if err := outMeter.Write(kept, to-from); err != nil {
			return fmt.Errorf("%w: %w", ErrAudioIO, err)
		}
		if measureAlignment {
			outHead = appendMono(outHead, kept, to-from)
		}
	}
	r.result.SamplesWritten = window.Kept()
	r.result.Input = inMeter.Report()
	r.result.Output = outMeter.Report()
	logger.Infof(ctx, "processed %d frames; input: %s; output: %s", r.result.FramesProcessed, r.result.Input, r.result.Output)

	if measureAlignment && len(inHead) > 0 && len(outHead) > 0 {
		alignment, err := analysis.MeasureAlignment(inHead, outHead, float64(info.InputSampleRate))
		if err != nil {
			logger.Warnf(ctx, "unable to measure the alignment of the output: %v", err)
		} else {
			logger.Infof(ctx, "the output is shifted by %.1f samples relative to the input (confidence %.2f)", alignment.Shift, alignment.Confidence)
			r.result.Alignment = &alignment
		}
	}
	return nil
}

// appendMono appends the channel average of n samples, up to alignmentSamples.
func appendMono(dst []float32, frames [][]float32, n int) []float32 {
	n = min(n, alignmentSamples-len(dst))
	for idx := 0; idx < n; idx++ {
		var sum float32
		for ch := range frames {
			sum += frames[ch][idx]
		}
		dst = append(dst, sum/float32(len(frames)))
	}
	return dst
}
