package superres

import (
	"context"
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	"github.com/xaionaro-go/audiofx/pkg/model"
)

func init() {
	effect.Register(effect.NameSuperRes, func(context.Context) (effect.Effect, error) {
		return New(), nil
	})
}

// SuperRes upsamples by a rational factor and synthesizes the band above
// the input Nyquist frequency from a rectified copy of the signal.
type SuperRes struct {
	effect.Base
	Model    *model.Descriptor
	channels []*channelState
}

var _ effect.Effect = (*SuperRes)(nil)

func New() *SuperRes {
	return &SuperRes{}
}

type channelState struct {
	resampler  *resample.Resampler
	highPass   *biquad.Chain
	input      []float64
	excitation []float64
}

func (s *SuperRes) Load(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Load")
	defer func() { logger.Tracef(ctx, "/Load: %v", _err) }()

	settings, err := s.BeginLoad()
	if err != nil {
		return err
	}
	defer func() {
		if _err != nil {
			s.AbortLoad()
		}
	}()

	desc, err := loadModel(settings)
	if err != nil {
		return effect.ErrorModel(err)
	}

	outFrameSize := desc.OutputFrameSize()
	var latency uint32
	channels := make([]*channelState, settings.Channels)
	for ch := range channels {
		r, err := newResampler(desc)
		if err != nil {
			return effect.ErrorModel(fmt.Errorf("unable to design the resampler: %w", err))
		}
		latency = uint32((len(r.Prototype()) - 1) / 2)
		coeffs := design.ButterworthHP(float64(desc.SampleRate)/2, desc.Excitation.Order, float64(desc.OutputSampleRate))
		channels[ch] = &channelState{
			resampler:  r,
			highPass:   biquad.NewChain(coeffs),
			input:      make([]float64, desc.FrameSize),
			excitation: make([]float64, outFrameSize),
		}
	}
	s.Model = desc
	s.channels = channels

	logger.Debugf(ctx, "superres loaded: %d -> %d Hz, frame %d -> %d, latency %d", desc.SampleRate, desc.OutputSampleRate, desc.FrameSize, outFrameSize, latency)
	s.FinishLoad(effect.Shape{
		OutputSampleRate: desc.OutputSampleRate,
		InputFrameSize:   desc.FrameSize,
		OutputFrameSize:  outFrameSize,
		LatencySamples:   latency,
	})
	return nil
}

func loadModel(settings effect.Settings) (*model.Descriptor, error) {
	modelPath := settings.ModelPath
	if modelPath == "" {
		var err error
		modelPath, err = model.DefaultPath(model.KindSuperRes, settings.InputSampleRate)
		if err != nil {
			return nil, err
		}
	}
	desc, err := model.Load(modelPath)
	if err != nil {
		return nil, err
	}
	if desc.Kind != model.KindSuperRes {
		return nil, fmt.Errorf("model '%s' is a '%s' model, not a super-resolution one", modelPath, desc.Kind)
	}
	if desc.SampleRate != settings.InputSampleRate {
		return nil, fmt.Errorf("model '%s' expects %d Hz, but the input is %d Hz", modelPath, desc.SampleRate, settings.InputSampleRate)
	}
	return desc, nil
}

func newResampler(desc *model.Descriptor) (*resample.Resampler, error) {
	quality := resample.QualityBest
	switch desc.Resampler.Quality {
	case model.QualityFast:
		quality = resample.QualityFast
	case model.QualityBalanced:
		quality = resample.QualityBalanced
	}
	// an odd prototype length keeps the group delay a whole number of samples
	tapsPerPhase := resample.QualityProfile(quality).TapsPerPhase | 1
	return resample.NewRational(
		int(desc.OutputSampleRate),
		int(desc.SampleRate),
		resample.WithQuality(quality),
		resample.WithTapsPerPhase(tapsPerPhase),
	)
}

func (s *SuperRes) Run(ctx context.Context, input, output [][]float32) error {
	intensity, err := s.CheckRun(input, output)
	if err != nil {
		return err
	}
	excitationGain := s.Model.Excitation.Gain * float64(intensity)
	return effect.ForEachChannel(ctx, len(s.channels), func(ctx context.Context, ch int) error {
		return s.channels[ch].process(input[ch], output[ch], excitationGain)
	})
}

func (c *channelState) process(input, output []float32, excitationGain float64) error {
	for idx, v := range input {
		c.input[idx] = float64(v)
	}
	upsampled := c.resampler.Process(c.input)
	if len(upsampled) != len(output) {
		return fmt.Errorf("the resampler produced %d samples instead of %d", len(upsampled), len(output))
	}

	for idx, v := range upsampled {
		if v < 0 {
			v = -v
		}
		c.excitation[idx] = v
	}
	c.highPass.ProcessBlock(c.excitation)

	for idx, v := range upsampled {
		output[idx] = float32(v + excitationGain*c.excitation[idx])
	}
	return nil
}

func (s *SuperRes) Close() error {
	if err := s.MarkClosed(); err != nil {
		return err
	}
	s.channels = nil
	return nil
}
