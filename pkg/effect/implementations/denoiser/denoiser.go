package denoiser

import (
	"context"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	"github.com/xaionaro-go/audiofx/pkg/model"
)

func init() {
	effect.Register(effect.NameDenoiser, func(context.Context) (effect.Effect, error) {
		return New(), nil
	})
}

// Denoiser is a spectral-subtraction noise suppressor with a
// minimum-statistics noise tracker, processing 50%-overlapped STFT frames.
type Denoiser struct {
	effect.Base
	Model    *model.Descriptor
	channels []*channelState
}

var _ effect.Effect = (*Denoiser)(nil)

func New() *Denoiser {
	return &Denoiser{}
}

func (d *Denoiser) Load(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Load")
	defer func() { logger.Tracef(ctx, "/Load: %v", _err) }()

	settings, err := d.BeginLoad()
	if err != nil {
		return err
	}
	defer func() {
		if _err != nil {
			d.AbortLoad()
		}
	}()

	desc, err := loadModel(settings)
	if err != nil {
		return effect.ErrorModel(err)
	}

	hop := int(desc.FrameSize)
	analysisWindow, err := sqrtHann(2 * hop)
	if err != nil {
		return fmt.Errorf("unable to build the analysis window: %w", err)
	}

	channels := make([]*channelState, settings.Channels)
	for ch := range channels {
		channels[ch] = newChannelState(desc, analysisWindow)
	}
	d.Model = desc
	d.channels = channels

	logger.Debugf(ctx, "denoiser loaded: rate:%d hop:%d fft:%d channels:%d", desc.SampleRate, hop, desc.FFTSize, settings.Channels)
	d.FinishLoad(effect.Shape{
		OutputSampleRate: desc.SampleRate,
		InputFrameSize:   desc.FrameSize,
		OutputFrameSize:  desc.FrameSize,
		LatencySamples:   desc.FrameSize,
	})
	return nil
}

func loadModel(settings effect.Settings) (*model.Descriptor, error) {
	modelPath := settings.ModelPath
	if modelPath == "" {
		var err error
		modelPath, err = model.DefaultPath(model.KindDenoiser, settings.InputSampleRate)
		if err != nil {
			return nil, err
		}
	}
	desc, err := model.Load(modelPath)
	if err != nil {
		return nil, err
	}
	if desc.Kind != model.KindDenoiser {
		return nil, fmt.Errorf("model '%s' is a '%s' model, not a denoiser", modelPath, desc.Kind)
	}
	if desc.SampleRate != settings.InputSampleRate {
		return nil, fmt.Errorf("model '%s' expects %d Hz, but the input is %d Hz", modelPath, desc.SampleRate, settings.InputSampleRate)
	}
	return desc, nil
}

// sqrtHann returns a periodic square-root Hann window; the squares of two
// half-overlapping copies sum to one.
func sqrtHann(size int) ([]float64, error) {
	w, err := window.Hann(size, window.WithPeriodic())
	if err != nil {
		return nil, err
	}
	for idx, v := range w {
		w[idx] = math.Sqrt(math.Max(v, 0))
	}
	return w, nil
}

func (d *Denoiser) Run(ctx context.Context, input, output [][]float32) error {
	intensity, err := d.CheckRun(input, output)
	if err != nil {
		return err
	}
	return effect.ForEachChannel(ctx, len(d.channels), func(ctx context.Context, ch int) error {
		d.channels[ch].process(input[ch], output[ch], float64(intensity))
		return nil
	})
}

func (d *Denoiser) Close() error {
	if err := d.MarkClosed(); err != nil {
		return err
	}
	d.channels = nil
	return nil
}
