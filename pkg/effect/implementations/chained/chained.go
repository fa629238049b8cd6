package chained

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	_ "github.com/xaionaro-go/audiofx/pkg/effect/implementations/denoiser"
	_ "github.com/xaionaro-go/audiofx/pkg/effect/implementations/superres"
)

func init() {
	effect.Register(effect.NameDenoiserSuperRes, func(ctx context.Context) (effect.Effect, error) {
		return New(ctx, effect.NameDenoiser, effect.NameSuperRes)
	})
}

// Chained runs several effects in series behind a single effect handle.
// List parameters address the stages in order; scalar ones apply to all of them.
type Chained struct {
	locker          sync.Mutex
	Stages          []effect.Effect
	inputSampleRate uint32
	loaded          bool
	closed          bool
	loadErr         error
	info            effect.Info
	intermediate    [][][]float32
}

var _ effect.Effect = (*Chained)(nil)

func New(ctx context.Context, names ...effect.Name) (_ *Chained, _err error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: a chain needs at least one stage", effect.ErrInvalidParam)
	}
	c := &Chained{
		inputSampleRate: effect.DefaultSampleRate,
	}
	defer func() {
		if _err != nil {
			for _, stage := range c.Stages {
				_ = stage.Close()
			}
		}
	}()
	for _, name := range names {
		stage, err := effect.Create(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("unable to create stage '%s': %w", name, err)
		}
		c.Stages = append(c.Stages, stage)
	}
	return c, nil
}

func (c *Chained) checkConfigurableLocked() error {
	switch {
	case c.closed:
		return effect.ErrClosed
	case c.loaded:
		return effect.ErrAlreadyLoaded
	case c.loadErr != nil:
		return fmt.Errorf("%w: %w", effect.ErrLoadFailed, c.loadErr)
	}
	return nil
}

func (c *Chained) SetU32(param effect.Param, value uint32) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	switch param {
	case effect.ParamInputSampleRate:
		if err := c.checkConfigurableLocked(); err != nil {
			return fmt.Errorf("unable to set '%s': %w", param, err)
		}
		if value == 0 {
			return fmt.Errorf("%w: '%s' must be positive", effect.ErrInvalidParam, param)
		}
		c.inputSampleRate = value
		return nil
	case effect.ParamNumInputChannels, effect.ParamNumOutputChannels:
		if err := c.checkConfigurableLocked(); err != nil {
			return fmt.Errorf("unable to set '%s': %w", param, err)
		}
		for idx, stage := range c.Stages {
			if err := stage.SetU32(param, value); err != nil {
				return fmt.Errorf("stage %d: %w", idx, err)
			}
		}
		return nil
	case effect.ParamOutputSampleRate, effect.ParamNumInputSamplesPerFrame, effect.ParamNumOutputSamplesPerFrame, effect.ParamLatencySamples:
		return fmt.Errorf("%w: '%s' is read-only", effect.ErrInvalidParam, param)
	default:
		return fmt.Errorf("%w: '%s' (uint32)", effect.ErrUnknownParam, param)
	}
}

func (c *Chained) SetFloat(param effect.Param, value float32) error {
	values := make([]float32, len(c.Stages))
	for idx := range values {
		values[idx] = value
	}
	return c.SetFloatList(param, values)
}

func (c *Chained) SetFloatList(param effect.Param, values []float32) error {
	if len(values) != len(c.Stages) {
		return fmt.Errorf("%w: '%s' expects %d values (one per stage), received %d", effect.ErrInvalidParam, param, len(c.Stages), len(values))
	}
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.closed {
		return effect.ErrClosed
	}
	if param == effect.ParamIntensityRatio {
		for idx, v := range values {
			if err := effect.ValidateIntensity(v); err != nil {
				return fmt.Errorf("stage %d: %w", idx, err)
			}
		}
	}
	for idx, stage := range c.Stages {
		if err := stage.SetFloat(param, values[idx]); err != nil {
			return fmt.Errorf("stage %d: %w", idx, err)
		}
	}
	return nil
}

func (c *Chained) SetString(param effect.Param, value string) error {
	values := make([]string, len(c.Stages))
	for idx := range values {
		values[idx] = value
	}
	return c.SetStringList(param, values)
}

func (c *Chained) SetStringList(param effect.Param, values []string) error {
	if len(values) != len(c.Stages) {
		return fmt.Errorf("%w: '%s' expects %d values (one per stage), received %d", effect.ErrInvalidParam, param, len(c.Stages), len(values))
	}
	c.locker.Lock()
	defer c.locker.Unlock()
	if err := c.checkConfigurableLocked(); err != nil {
		return fmt.Errorf("unable to set '%s': %w", param, err)
	}
	for idx, stage := range c.Stages {
		if err := stage.SetString(param, values[idx]); err != nil {
			return fmt.Errorf("stage %d: %w", idx, err)
		}
	}
	return nil
}

func (c *Chained) GetU32(param effect.Param) (uint32, error) {
	c.locker.Lock()
	defer c.locker.Unlock()
	switch param {
	case effect.ParamInputSampleRate:
		return c.inputSampleRate, nil
	case effect.ParamNumInputChannels, effect.ParamNumOutputChannels:
		return c.Stages[0].GetU32(param)
	}

	var v uint32
	switch param {
	case effect.ParamOutputSampleRate:
		v = c.info.OutputSampleRate
	case effect.ParamNumInputSamplesPerFrame:
		v = c.info.InputFrameSize
	case effect.ParamNumOutputSamplesPerFrame:
		v = c.info.OutputFrameSize
	case effect.ParamLatencySamples:
		v = c.info.LatencySamples
	default:
		return 0, fmt.Errorf("%w: '%s' (uint32)", effect.ErrUnknownParam, param)
	}
	if !c.loaded {
		return 0, fmt.Errorf("unable to get '%s': %w", param, effect.ErrNotLoaded)
	}
	return v, nil
}

// GetFloat reports the value of the first stage.
func (c *Chained) GetFloat(param effect.Param) (float32, error) {
	return c.Stages[0].GetFloat(param)
}

// Load loads the stages in order. The stages loaded before a failing one
// cannot be reconfigured, so after a failure the chain only accepts Close.
func (c *Chained) Load(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Load")
	defer func() { logger.Tracef(ctx, "/Load: %v", _err) }()

	c.locker.Lock()
	defer c.locker.Unlock()
	if err := c.checkConfigurableLocked(); err != nil {
		return err
	}
	defer func() {
		if _err != nil {
			c.loadErr = _err
		}
	}()

	sampleRate := c.inputSampleRate
	infos := make([]effect.Info, len(c.Stages))
	for idx, stage := range c.Stages {
		if err := stage.SetU32(effect.ParamInputSampleRate, sampleRate); err != nil {
			return fmt.Errorf("stage %d: %w", idx, err)
		}
		if err := stage.Load(ctx); err != nil {
			return fmt.Errorf("unable to load stage %d: %w", idx, err)
		}
		info, err := effect.GetInfo(stage)
		if err != nil {
			return fmt.Errorf("unable to query stage %d: %w", idx, err)
		}
		if idx > 0 && info.InputFrameSize != infos[idx-1].OutputFrameSize {
			return fmt.Errorf(
				"%w: stage %d consumes %d samples per frame, but stage %d produces %d",
				effect.ErrInvalidParam, idx, info.InputFrameSize, idx-1, infos[idx-1].OutputFrameSize,
			)
		}
		infos[idx] = info
		sampleRate = info.OutputSampleRate
	}

	first, last := infos[0], infos[len(infos)-1]
	var latency uint64
	for _, info := range infos {
		latency += uint64(info.LatencySamples) * uint64(last.OutputSampleRate) / uint64(info.OutputSampleRate)
	}

	c.intermediate = make([][][]float32, len(c.Stages)-1)
	for idx := range c.intermediate {
		c.intermediate[idx] = effect.NewBuffers(int(infos[idx].OutputChannels), int(infos[idx].OutputFrameSize))
	}
	c.info = effect.Info{
		InputSampleRate:  first.InputSampleRate,
		OutputSampleRate: last.OutputSampleRate,
		InputChannels:    first.InputChannels,
		OutputChannels:   last.OutputChannels,
		InputFrameSize:   first.InputFrameSize,
		OutputFrameSize:  last.OutputFrameSize,
		LatencySamples:   uint32(latency),
	}
	c.loaded = true
	logger.Debugf(ctx, "chain of %d stages loaded: %#+v", len(c.Stages), c.info)
	return nil
}

func (c *Chained) Run(ctx context.Context, input, output [][]float32) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	switch {
	case c.closed:
		return effect.ErrClosed
	case !c.loaded:
		return effect.ErrNotLoaded
	}
	if err := effect.CheckBuffers(input, c.info.InputChannels, c.info.InputFrameSize); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := effect.CheckBuffers(output, c.info.OutputChannels, c.info.OutputFrameSize); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	src := input
	for idx, stage := range c.Stages {
		dst := output
		if idx < len(c.intermediate) {
			dst = c.intermediate[idx]
		}
		if err := stage.Run(ctx, src, dst); err != nil {
			return fmt.Errorf("stage %d: %w", idx, err)
		}
		src = dst
	}
	return nil
}

func (c *Chained) Close() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.closed {
		return fmt.Errorf("double-free attempt: %w", effect.ErrClosed)
	}
	c.closed = true

	var mErr *multierror.Error
	for idx, stage := range c.Stages {
		if err := stage.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close stage %d: %w", idx, err))
		}
	}
	c.intermediate = nil
	return mErr.ErrorOrNil()
}
