package model

import (
	"embed"
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// BuiltinPrefix marks a model path that refers to an embedded descriptor.
const BuiltinPrefix = "builtin:"

//go:embed builtin/*.yaml
var builtinFS embed.FS

var (
	ErrNotFound = errors.New("model not found")
	ErrInvalid  = errors.New("invalid model")
)

type Kind string

const (
	KindDenoiser = Kind("denoiser")
	KindSuperRes = Kind("superres")
)

type Quality string

const (
	QualityFast     = Quality("fast")
	QualityBalanced = Quality("balanced")
	QualityBest     = Quality("best")
)

type Noise struct {
	InitialFrames uint32  `yaml:"initial_frames"`
	Smoothing     float64 `yaml:"smoothing"`
	WindowFrames  uint32  `yaml:"window_frames"`
	Bias          float64 `yaml:"bias"`
}

type Gain struct {
	OverSubtraction float64 `yaml:"over_subtraction"`
	FloorDB         float64 `yaml:"floor_db"`
	Smoothing       float64 `yaml:"smoothing"`
}

type Excitation struct {
	Gain  float64 `yaml:"gain"`
	Order int     `yaml:"order"`
}

type Resampler struct {
	Quality Quality `yaml:"quality"`
}

// Descriptor describes the parameters of an effect model.
type Descriptor struct {
	Kind             Kind       `yaml:"kind"`
	SampleRate       uint32     `yaml:"sample_rate"`
	OutputSampleRate uint32     `yaml:"output_sample_rate"`
	FrameSize        uint32     `yaml:"frame_size"`
	FFTSize          uint32     `yaml:"fft_size,omitempty"`
	Noise            Noise      `yaml:"noise,omitempty"`
	Gain             Gain       `yaml:"gain,omitempty"`
	Excitation       Excitation `yaml:"excitation,omitempty"`
	Resampler        Resampler  `yaml:"resampler,omitempty"`
}

// Load reads a descriptor either from the embedded set ("builtin:<name>")
// or from a file.
func Load(modelPath string) (*Descriptor, error) {
	var (
		b   []byte
		err error
	)
	if name, ok := strings.CutPrefix(modelPath, BuiltinPrefix); ok {
		b, err = builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("%w: builtin model '%s' (known: %v)", ErrNotFound, name, BuiltinNames())
		}
	} else {
		b, err = os.ReadFile(modelPath)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read '%s': %w", ErrNotFound, modelPath, err)
		}
	}

	d, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("unable to parse model '%s': %w", modelPath, err)
	}
	return d, nil
}

func Parse(b []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if d.OutputSampleRate == 0 {
		d.OutputSampleRate = d.SampleRate
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the internal consistency of the descriptor.
func (d *Descriptor) Validate() error {
	if d.SampleRate == 0 || d.OutputSampleRate == 0 {
		return fmt.Errorf("%w: sample rates must be positive", ErrInvalid)
	}
	if d.FrameSize == 0 {
		return fmt.Errorf("%w: frame_size must be positive", ErrInvalid)
	}
	switch d.Kind {
	case KindDenoiser:
		if d.OutputSampleRate != d.SampleRate {
			return fmt.Errorf("%w: a denoiser cannot change the sample rate (%d -> %d)", ErrInvalid, d.SampleRate, d.OutputSampleRate)
		}
		if d.FFTSize < 2*d.FrameSize {
			return fmt.Errorf("%w: fft_size (%d) must be at least twice frame_size (%d)", ErrInvalid, d.FFTSize, d.FrameSize)
		}
		if bits.OnesCount32(d.FFTSize) != 1 {
			return fmt.Errorf("%w: fft_size (%d) must be a power of two", ErrInvalid, d.FFTSize)
		}
		if d.Noise.InitialFrames == 0 || d.Noise.WindowFrames == 0 {
			return fmt.Errorf("%w: noise.initial_frames and noise.window_frames must be positive", ErrInvalid)
		}
		if d.Noise.Smoothing < 0 || d.Noise.Smoothing >= 1 || d.Gain.Smoothing < 0 || d.Gain.Smoothing >= 1 {
			return fmt.Errorf("%w: smoothing factors must be within [0, 1)", ErrInvalid)
		}
		if d.Noise.Bias <= 0 || d.Gain.OverSubtraction <= 0 {
			return fmt.Errorf("%w: noise.bias and gain.over_subtraction must be positive", ErrInvalid)
		}
		if d.Gain.FloorDB > 0 {
			return fmt.Errorf("%w: gain.floor_db must not be positive, received %v", ErrInvalid, d.Gain.FloorDB)
		}
	case KindSuperRes:
		if d.OutputSampleRate <= d.SampleRate {
			return fmt.Errorf("%w: super-resolution must increase the sample rate (%d -> %d)", ErrInvalid, d.SampleRate, d.OutputSampleRate)
		}
		if uint64(d.FrameSize)*uint64(d.OutputSampleRate)%uint64(d.SampleRate) != 0 {
			return fmt.Errorf("%w: frame_size %d does not map to a whole number of output samples", ErrInvalid, d.FrameSize)
		}
		if d.Excitation.Order < 1 || d.Excitation.Order > 16 {
			return fmt.Errorf("%w: excitation.order must be within [1, 16], received %d", ErrInvalid, d.Excitation.Order)
		}
		if d.Excitation.Gain < 0 {
			return fmt.Errorf("%w: excitation.gain must not be negative", ErrInvalid)
		}
		switch d.Resampler.Quality {
		case "", QualityFast, QualityBalanced, QualityBest:
		default:
			return fmt.Errorf("%w: unknown resampler.quality '%s'", ErrInvalid, d.Resampler.Quality)
		}
	default:
		return fmt.Errorf("%w: unknown kind '%s'", ErrInvalid, d.Kind)
	}
	return nil
}

// OutputFrameSize is the amount of output samples produced per input frame.
func (d *Descriptor) OutputFrameSize() uint32 {
	return uint32(uint64(d.FrameSize) * uint64(d.OutputSampleRate) / uint64(d.SampleRate))
}

// DefaultPath returns the builtin model for the given kind and input sample rate.
func DefaultPath(kind Kind, sampleRate uint32) (string, error) {
	var name string
	switch {
	case kind == KindDenoiser && sampleRate == 16000:
		name = "denoiser_16k"
	case kind == KindDenoiser && sampleRate == 48000:
		name = "denoiser_48k"
	case kind == KindSuperRes && sampleRate == 16000:
		name = "superres_16k_to_48k"
	default:
		return "", fmt.Errorf("%w: no builtin %s model for %d Hz", ErrNotFound, kind, sampleRate)
	}
	return BuiltinPrefix + name, nil
}

func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		panic(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
