// Package config describes a processing run and loads it from a YAML file
// and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/effect"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultMaxMemory = 1 << 30

	DefaultRawPCMFormat = "f32le"
)

type Config struct {
	Input  string `yaml:"input,omitempty"`
	Output string `yaml:"output,omitempty"`

	Effect     effect.Name `yaml:"effect"`
	SampleRate uint32      `yaml:"sample_rate"`

	// Intensity holds one value for every stage, or a single value applied
	// to all of them. Empty means the effect default.
	Intensity []float32 `yaml:"intensity,omitempty"`

	// Models holds one model path per stage, or a single one for all of
	// them. Empty means the builtin models.
	Models []string `yaml:"models,omitempty"`

	InputFormat   audiofile.Container    `yaml:"input_format"`
	RawPCMFormat  string                 `yaml:"raw_pcm_format"`
	RawChannels   uint32                 `yaml:"raw_channels"`
	RawSampleRate uint32                 `yaml:"raw_sample_rate,omitempty"`
	OutputFormat  audiofile.SampleFormat `yaml:"output_format"`

	WholeFile         bool   `yaml:"whole_file"`
	CompensateLatency bool   `yaml:"compensate_latency"`
	MaxMemory         uint64 `yaml:"max_memory"`
	Play              bool   `yaml:"play"`
}

func Default() Config {
	return Config{
		Effect:            effect.NameDenoiser,
		SampleRate:        effect.DefaultSampleRate,
		InputFormat:       audiofile.ContainerAuto,
		RawPCMFormat:      DefaultRawPCMFormat,
		RawChannels:       1,
		OutputFormat:      audiofile.SampleFormatFloat32,
		CompensateLatency: true,
		MaxMemory:         DefaultMaxMemory,
	}
}

// ReadFile reads a YAML config; the fields absent in the file keep their
// default values.
func ReadFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read the config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse the config file '%s': %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) WriteFile(path string) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to serialize the config: %w", err)
	}
	if err := os.WriteFile(path, b, 0640); err != nil {
		return fmt.Errorf("unable to write the config file '%s': %w", path, err)
	}
	return nil
}

func (cfg Config) Validate() error {
	if cfg.Input == "" || cfg.Output == "" {
		return fmt.Errorf("%w: both the input and the output must be set", ErrInvalid)
	}
	if cfg.Effect == "" {
		return fmt.Errorf("%w: the effect is not set", ErrInvalid)
	}
	if cfg.SampleRate == 0 {
		return fmt.Errorf("%w: the sample rate must be positive", ErrInvalid)
	}
	for _, v := range cfg.Intensity {
		if err := effect.ValidateIntensity(v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if _, err := audiofile.ParseContainer(string(cfg.InputFormat)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := audiofile.ParseSampleFormat(string(cfg.OutputFormat)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	outputContainer := audiofile.OutputContainer(cfg.Output)
	if cfg.Output == audiofile.StdStream || outputContainer == audiofile.ContainerRaw {
		if _, err := cfg.RawFormat(); err != nil {
			return err
		}
	}
	switch outputContainer {
	case audiofile.ContainerOgg:
		return fmt.Errorf("%w: writing Ogg Vorbis is not supported", ErrInvalid)
	case audiofile.ContainerAuto:
		return fmt.Errorf("%w: unsupported output file type '%s'; use .wav, .raw or .pcm", ErrInvalid, filepath.Ext(cfg.Output))
	}
	inputContainer := cfg.InputFormat
	if inputContainer == "" || inputContainer == audiofile.ContainerAuto {
		inputContainer = audiofile.DetectContainer(cfg.Input)
	}
	if inputContainer == audiofile.ContainerRaw {
		if _, err := cfg.RawFormat(); err != nil {
			return err
		}
		if cfg.RawChannels == 0 {
			return fmt.Errorf("%w: raw_channels must be positive", ErrInvalid)
		}
	}
	if cfg.Play && cfg.Output == audiofile.StdStream {
		return fmt.Errorf("%w: cannot play the output written to stdout", ErrInvalid)
	}
	return nil
}

// RawFormat is the PCM format of raw input and output.
func (cfg Config) RawFormat() (audio.PCMFormat, error) {
	f, err := audio.ParsePCMFormat(cfg.RawPCMFormat)
	if err != nil {
		return audio.PCMFormatUndefined, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return f, nil
}

// RawInputSampleRate is the sample rate assumed for raw input.
func (cfg Config) RawInputSampleRate() uint32 {
	if cfg.RawSampleRate != 0 {
		return cfg.RawSampleRate
	}
	return cfg.SampleRate
}
