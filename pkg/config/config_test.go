package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/effect"
)

func validConfig() Config {
	cfg := Default()
	cfg.Input = "in.wav"
	cfg.Output = "out.wav"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, effect.NameDenoiser, cfg.Effect)
	require.Equal(t, uint32(16000), cfg.SampleRate)
	require.Equal(t, audiofile.SampleFormatFloat32, cfg.OutputFormat)
	require.True(t, cfg.CompensateLatency)
	require.Equal(t, uint64(1<<30), cfg.MaxMemory)
	require.NoError(t, validConfig().Validate())
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
effect: denoiser_16k_superres_16k_to_48k
intensity: [0.5, 1]
models:
  - builtin:denoiser_16k
  - builtin:superres_16k_to_48k
output_format: s16
`), 0640))

	cfg, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, effect.NameDenoiserSuperRes, cfg.Effect)
	require.Equal(t, []float32{0.5, 1}, cfg.Intensity)
	require.Equal(t, []string{"builtin:denoiser_16k", "builtin:superres_16k_to_48k"}, cfg.Models)
	require.Equal(t, audiofile.SampleFormatS16, cfg.OutputFormat)
	require.Equal(t, uint32(16000), cfg.SampleRate, "absent fields keep their defaults")
	require.True(t, cfg.CompensateLatency)

	roundTrip := filepath.Join(dir, "written.yaml")
	require.NoError(t, cfg.WriteFile(roundTrip))
	cfg2, err := ReadFile(roundTrip)
	require.NoError(t, err)
	require.Equal(t, cfg, cfg2)

	_, err = ReadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("effect: [unterminated"), 0640))
	_, err = ReadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"no_input":          func(c *Config) { c.Input = "" },
		"no_effect":         func(c *Config) { c.Effect = "" },
		"zero_rate":         func(c *Config) { c.SampleRate = 0 },
		"intensity":         func(c *Config) { c.Intensity = []float32{0.5, 1.5} },
		"container":         func(c *Config) { c.InputFormat = "flac" },
		"output_format":     func(c *Config) { c.OutputFormat = "s8" },
		"ogg_output":        func(c *Config) { c.Output = "out.ogg" },
		"flac_output":       func(c *Config) { c.Output = "out.flac" },
		"raw_format":        func(c *Config) { c.Input = "-"; c.RawPCMFormat = "s17le" },
		"raw_channels":      func(c *Config) { c.InputFormat = audiofile.ContainerRaw; c.RawChannels = 0 },
		"play_stdout":       func(c *Config) { c.Output = "-"; c.Play = true },
		"raw_output_format": func(c *Config) { c.Output = "out.pcm"; c.RawPCMFormat = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestFlagsOverride(t *testing.T) {
	fileCfg := validConfig()
	fileCfg.Effect = effect.NameSuperRes
	fileCfg.SampleRate = 48000
	fileCfg.MaxMemory = 123

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := AddFlags(fs, Default())
	require.NoError(t, fs.Parse([]string{
		"--sample-rate", "16000",
		"--intensity", "0.25,0.75",
		"--no-latency-compensation",
		"--output-format", "s24",
	}))
	flags.Apply(fs, &fileCfg)

	require.Equal(t, effect.NameSuperRes, fileCfg.Effect, "unset flags do not override the file")
	require.Equal(t, uint64(123), fileCfg.MaxMemory)
	require.Equal(t, uint32(16000), fileCfg.SampleRate)
	require.Equal(t, []float32{0.25, 0.75}, fileCfg.Intensity)
	require.False(t, fileCfg.CompensateLatency)
	require.Equal(t, audiofile.SampleFormatS24, fileCfg.OutputFormat)
}
