package config

import (
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/effect"
)

type flagBinding struct {
	name  string
	apply func(dst, src *Config)
}

var flagBindings = []flagBinding{
	{"effect", func(dst, src *Config) { dst.Effect = src.Effect }},
	{"sample-rate", func(dst, src *Config) { dst.SampleRate = src.SampleRate }},
	{"intensity", func(dst, src *Config) { dst.Intensity = src.Intensity }},
	{"model", func(dst, src *Config) { dst.Models = src.Models }},
	{"input-format", func(dst, src *Config) { dst.InputFormat = src.InputFormat }},
	{"raw-pcm-format", func(dst, src *Config) { dst.RawPCMFormat = src.RawPCMFormat }},
	{"raw-channels", func(dst, src *Config) { dst.RawChannels = src.RawChannels }},
	{"raw-sample-rate", func(dst, src *Config) { dst.RawSampleRate = src.RawSampleRate }},
	{"output-format", func(dst, src *Config) { dst.OutputFormat = src.OutputFormat }},
	{"whole-file", func(dst, src *Config) { dst.WholeFile = src.WholeFile }},
	{"no-latency-compensation", func(dst, src *Config) { dst.CompensateLatency = src.CompensateLatency }},
	{"max-memory", func(dst, src *Config) { dst.MaxMemory = src.MaxMemory }},
	{"play", func(dst, src *Config) { dst.Play = src.Play }},
}

// Flags holds the values of the command line flags until they are applied.
type Flags struct {
	cfg                   Config
	effect                string
	inputFormat           string
	outputFormat          string
	noLatencyCompensation bool
}

// AddFlags registers the configuration flags; defaults are taken from cfg.
func AddFlags(fs *pflag.FlagSet, cfg Config) *Flags {
	f := &Flags{cfg: cfg}
	fs.StringVar(&f.effect, "effect", string(cfg.Effect), "effect to apply: denoiser | superres | denoiser_16k_superres_16k_to_48k | passthrough")
	fs.Uint32Var(&f.cfg.SampleRate, "sample-rate", cfg.SampleRate, "the input sample rate of the effect")
	fs.Float32SliceVar(&f.cfg.Intensity, "intensity", cfg.Intensity, "intensity ratio within [0, 1]; one value for all the stages or one per stage")
	fs.StringSliceVar(&f.cfg.Models, "model", cfg.Models, "model path(s): 'builtin:<name>' or a YAML file; one for all the stages or one per stage")
	fs.StringVar(&f.inputFormat, "input-format", string(cfg.InputFormat), "input container: auto | wav | ogg | raw")
	fs.StringVar(&f.cfg.RawPCMFormat, "raw-pcm-format", cfg.RawPCMFormat, "sample format of raw input and output (s16le, f32le, ...)")
	fs.Uint32Var(&f.cfg.RawChannels, "raw-channels", cfg.RawChannels, "the amount of channels of raw input")
	fs.Uint32Var(&f.cfg.RawSampleRate, "raw-sample-rate", cfg.RawSampleRate, "the sample rate of raw input (default: --sample-rate)")
	fs.StringVar(&f.outputFormat, "output-format", string(cfg.OutputFormat), "sample format of WAV output: float32 | s16 | s24")
	fs.BoolVar(&f.cfg.WholeFile, "whole-file", cfg.WholeFile, "read the whole input into memory before processing")
	fs.BoolVar(&f.noLatencyCompensation, "no-latency-compensation", !cfg.CompensateLatency, "keep the algorithmic delay of the effect in the output")
	fs.Uint64Var(&f.cfg.MaxMemory, "max-memory", cfg.MaxMemory, "the maximal amount of bytes to allocate for audio buffers")
	fs.BoolVar(&f.cfg.Play, "play", cfg.Play, "play the result after writing it")
	return f
}

// Apply copies the flags explicitly set on the command line into dst.
func (f *Flags) Apply(fs *pflag.FlagSet, dst *Config) {
	src := f.cfg
	src.Effect = effect.Name(f.effect)
	src.InputFormat = audiofile.Container(f.inputFormat)
	src.OutputFormat = audiofile.SampleFormat(f.outputFormat)
	src.CompensateLatency = !f.noLatencyCompensation

	for _, binding := range flagBindings {
		if fs.Changed(binding.name) {
			binding.apply(dst, &src)
		}
	}
}
