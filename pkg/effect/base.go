package effect

import (
	"fmt"
	"math"
	"sync"
)

type baseState int

const (
	baseStateConfiguring = baseState(iota)
	baseStateLoading
	baseStateLoaded
	baseStateClosed
)

// Settings are the user-provided parameters of a single-stage effect.
type Settings struct {
	InputSampleRate uint32
	IntensityRatio  float32
	ModelPath       string
	Channels        uint32
}

// Shape is what a single-stage effect reports once loaded.
type Shape struct {
	OutputSampleRate uint32
	InputFrameSize   uint32
	OutputFrameSize  uint32
	LatencySamples   uint32
}

// Base implements the parameter bookkeeping shared by single-stage effects.
// The zero value is ready to use: 16 kHz, mono, intensity 1, builtin model.
type Base struct {
	locker          sync.Mutex
	state           baseState
	inputSampleRate uint32
	intensityRatio  float32
	intensitySet    bool
	modelPath       string
	channels        uint32
	shape           Shape
}

func (b *Base) checkConfigurableLocked() error {
	switch b.state {
	case baseStateConfiguring:
		return nil
	case baseStateClosed:
		return ErrClosed
	default:
		return ErrAlreadyLoaded
	}
}

func (b *Base) SetU32(param Param, value uint32) error {
	b.locker.Lock()
	defer b.locker.Unlock()
	switch param {
	case ParamInputSampleRate:
		if err := b.checkConfigurableLocked(); err != nil {
			return fmt.Errorf("unable to set '%s': %w", param, err)
		}
		if value == 0 {
			return fmt.Errorf("%w: '%s' must be positive", ErrInvalidParam, param)
		}
		b.inputSampleRate = value
	case ParamNumInputChannels, ParamNumOutputChannels:
		if err := b.checkConfigurableLocked(); err != nil {
			return fmt.Errorf("unable to set '%s': %w", param, err)
		}
		if err := ValidateChannels(value); err != nil {
			return err
		}
		b.channels = value
	case ParamOutputSampleRate, ParamNumInputSamplesPerFrame, ParamNumOutputSamplesPerFrame, ParamLatencySamples:
		return fmt.Errorf("%w: '%s' is read-only", ErrInvalidParam, param)
	default:
		return fmt.Errorf("%w: '%s' (uint32)", ErrUnknownParam, param)
	}
	return nil
}

func (b *Base) SetFloat(param Param, value float32) error {
	if param != ParamIntensityRatio {
		return fmt.Errorf("%w: '%s' (float)", ErrUnknownParam, param)
	}
	if err := ValidateIntensity(value); err != nil {
		return err
	}
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.state == baseStateClosed {
		return ErrClosed
	}
	b.intensityRatio = value
	b.intensitySet = true
	return nil
}

// SetFloatList accepts a single-element list, as a single-stage effect has one value per parameter.
func (b *Base) SetFloatList(param Param, values []float32) error {
	if len(values) != 1 {
		return fmt.Errorf("%w: '%s' expects exactly 1 value, received %d", ErrInvalidParam, param, len(values))
	}
	return b.SetFloat(param, values[0])
}

func (b *Base) SetString(param Param, value string) error {
	if param != ParamModelPath {
		return fmt.Errorf("%w: '%s' (string)", ErrUnknownParam, param)
	}
	b.locker.Lock()
	defer b.locker.Unlock()
	if err := b.checkConfigurableLocked(); err != nil {
		return fmt.Errorf("unable to set '%s': %w", param, err)
	}
	b.modelPath = value
	return nil
}

func (b *Base) SetStringList(param Param, values []string) error {
	if len(values) != 1 {
		return fmt.Errorf("%w: '%s' expects exactly 1 value, received %d", ErrInvalidParam, param, len(values))
	}
	return b.SetString(param, values[0])
}

func (b *Base) GetU32(param Param) (uint32, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	settings := b.settingsLocked()
	switch param {
	case ParamInputSampleRate:
		return settings.InputSampleRate, nil
	case ParamNumInputChannels, ParamNumOutputChannels:
		return settings.Channels, nil
	}

	var v uint32
	switch param {
	case ParamOutputSampleRate:
		v = b.shape.OutputSampleRate
	case ParamNumInputSamplesPerFrame:
		v = b.shape.InputFrameSize
	case ParamNumOutputSamplesPerFrame:
		v = b.shape.OutputFrameSize
	case ParamLatencySamples:
		v = b.shape.LatencySamples
	default:
		return 0, fmt.Errorf("%w: '%s' (uint32)", ErrUnknownParam, param)
	}
	if b.state != baseStateLoaded {
		return 0, fmt.Errorf("unable to get '%s': %w", param, ErrNotLoaded)
	}
	return v, nil
}

func (b *Base) GetFloat(param Param) (float32, error) {
	if param != ParamIntensityRatio {
		return 0, fmt.Errorf("%w: '%s' (float)", ErrUnknownParam, param)
	}
	return b.Intensity(), nil
}

func (b *Base) settingsLocked() Settings {
	s := Settings{
		InputSampleRate: b.inputSampleRate,
		IntensityRatio:  b.intensityRatio,
		ModelPath:       b.modelPath,
		Channels:        b.channels,
	}
	if s.InputSampleRate == 0 {
		s.InputSampleRate = DefaultSampleRate
	}
	if !b.intensitySet {
		s.IntensityRatio = 1
	}
	if s.Channels == 0 {
		s.Channels = 1
	}
	return s
}

// Intensity returns the current intensity ratio; it may change between frames.
func (b *Base) Intensity() float32 {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.settingsLocked().IntensityRatio
}

// BeginLoad locks the structural parameters and returns them.
// It must be followed by either FinishLoad or AbortLoad.
func (b *Base) BeginLoad() (Settings, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	if err := b.checkConfigurableLocked(); err != nil {
		return Settings{}, err
	}
	b.state = baseStateLoading
	return b.settingsLocked(), nil
}

func (b *Base) FinishLoad(shape Shape) {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.shape = shape
	b.state = baseStateLoaded
}

func (b *Base) AbortLoad() {
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.state == baseStateLoading {
		b.state = baseStateConfiguring
	}
}

// CheckRun validates the effect state and the buffer shapes of one frame,
// and returns the intensity ratio to apply.
func (b *Base) CheckRun(input, output [][]float32) (float32, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	switch b.state {
	case baseStateLoaded:
	case baseStateClosed:
		return 0, ErrClosed
	default:
		return 0, ErrNotLoaded
	}
	settings := b.settingsLocked()
	if err := CheckBuffers(input, settings.Channels, b.shape.InputFrameSize); err != nil {
		return 0, fmt.Errorf("input: %w", err)
	}
	if err := CheckBuffers(output, settings.Channels, b.shape.OutputFrameSize); err != nil {
		return 0, fmt.Errorf("output: %w", err)
	}
	return settings.IntensityRatio, nil
}

// MarkClosed transitions to the closed state; closing twice is an error.
func (b *Base) MarkClosed() error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.state == baseStateClosed {
		return fmt.Errorf("double-free attempt: %w", ErrClosed)
	}
	b.state = baseStateClosed
	return nil
}

func ValidateIntensity(v float32) error {
	if math.IsNaN(float64(v)) || v < 0 || v > 1 {
		return fmt.Errorf("%w: intensity ratio must be within [0, 1], received %v", ErrInvalidParam, v)
	}
	return nil
}

func ValidateChannels(v uint32) error {
	if v < 1 || v > MaxChannels {
		return fmt.Errorf("%w: the amount of channels must be within [1, %d], received %d", ErrInvalidParam, MaxChannels, v)
	}
	return nil
}
