package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinModelsAreValid(t *testing.T) {
	names := BuiltinNames()
	require.Equal(t, []string{"denoiser_16k", "denoiser_48k", "superres_16k_to_48k"}, names)
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			d, err := Load(BuiltinPrefix + name)
			require.NoError(t, err)
			require.NoError(t, d.Validate())
		})
	}
}

func TestDefaultPath(t *testing.T) {
	p, err := DefaultPath(KindDenoiser, 16000)
	require.NoError(t, err)
	assert.Equal(t, "builtin:denoiser_16k", p)

	p, err = DefaultPath(KindSuperRes, 16000)
	require.NoError(t, err)
	d, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), d.OutputSampleRate)
	assert.Equal(t, uint32(480), d.OutputFrameSize())

	_, err = DefaultPath(KindSuperRes, 44100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(`
kind: denoiser
sample_rate: 8000
frame_size: 80
fft_size: 256
noise: {initial_frames: 4, smoothing: 0.8, window_frames: 50, bias: 1.5}
gain: {over_subtraction: 1.5, floor_db: -20, smoothing: 0.5}
`), 0640))

	d, err := Load(modelPath)
	require.NoError(t, err)
	assert.Equal(t, KindDenoiser, d.Kind)
	assert.Equal(t, uint32(8000), d.OutputSampleRate)
	assert.Equal(t, uint32(80), d.FrameSize)
	assert.Equal(t, 1.5, d.Noise.Bias)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Load("builtin:nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidate(t *testing.T) {
	for name, body := range map[string]string{
		"unknown_kind":       "kind: reverb\nsample_rate: 16000\nframe_size: 160\n",
		"fft_not_pow2":       "kind: denoiser\nsample_rate: 16000\nframe_size: 160\nfft_size: 500\nnoise: {initial_frames: 1, window_frames: 1, bias: 1}\ngain: {over_subtraction: 1}\n",
		"fft_too_small":      "kind: denoiser\nsample_rate: 16000\nframe_size: 160\nfft_size: 256\nnoise: {initial_frames: 1, window_frames: 1, bias: 1}\ngain: {over_subtraction: 1}\n",
		"zero_rate":          "kind: denoiser\nframe_size: 160\nfft_size: 512\n",
		"superres_downwards": "kind: superres\nsample_rate: 48000\noutput_sample_rate: 16000\nframe_size: 480\nexcitation: {order: 2}\n",
		"superres_fraction":  "kind: superres\nsample_rate: 16000\noutput_sample_rate: 22050\nframe_size: 160\nexcitation: {order: 2}\n",
		"not_yaml":           "kind: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}
