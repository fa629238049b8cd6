package denoiser

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiofx/pkg/effect"
)

func newLoaded(t *testing.T, channels uint32, intensity float32) *Denoiser {
	d := New()
	require.NoError(t, d.SetU32(effect.ParamInputSampleRate, 16000))
	require.NoError(t, d.SetU32(effect.ParamNumInputChannels, channels))
	require.NoError(t, d.SetFloat(effect.ParamIntensityRatio, intensity))
	require.NoError(t, d.Load(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func rmsDB(v []float32) float64 {
	var sum float64
	for _, s := range v {
		sum += float64(s) * float64(s)
	}
	return 10 * math.Log10(sum/float64(len(v)))
}

func TestDenoiserShape(t *testing.T) {
	d := newLoaded(t, 1, 1)
	info, err := effect.GetInfo(d)
	require.NoError(t, err)
	assert.Equal(t, effect.Info{
		InputSampleRate:  16000,
		OutputSampleRate: 16000,
		InputChannels:    1,
		OutputChannels:   1,
		InputFrameSize:   160,
		OutputFrameSize:  160,
		LatencySamples:   160,
	}, info)
}

func TestDenoiserZeroIntensityIsTransparent(t *testing.T) {
	ctx := context.Background()
	d := newLoaded(t, 2, 0)
	rng := rand.New(rand.NewSource(1))

	const frames = 20
	var in, out [2][]float32
	input := effect.NewBuffers(2, 160)
	output := effect.NewBuffers(2, 160)
	for f := 0; f < frames; f++ {
		for ch := range input {
			for idx := range input[ch] {
				input[ch][idx] = float32(rng.NormFloat64() * 0.1)
			}
			in[ch] = append(in[ch], input[ch]...)
		}
		require.NoError(t, d.Run(ctx, input, output))
		for ch := range output {
			out[ch] = append(out[ch], output[ch]...)
		}
	}

	for ch := 0; ch < 2; ch++ {
		for idx := 0; idx < len(in[ch])-160; idx++ {
			require.InDelta(t, in[ch][idx], out[ch][idx+160], 1e-5, "ch:%d idx:%d", ch, idx)
		}
	}
}

func TestDenoiserSuppressesNoiseKeepsTone(t *testing.T) {
	ctx := context.Background()
	d := newLoaded(t, 1, 1)
	rng := rand.New(rand.NewSource(2))

	var in, out []float32
	input := effect.NewBuffers(1, 160)
	output := effect.NewBuffers(1, 160)
	for f := 0; f < 150; f++ {
		for idx := range input[0] {
			v := rng.NormFloat64() * 0.05
			if f >= 100 {
				v += 0.3 * math.Sin(2*math.Pi*1000*float64(f*160+idx)/16000)
			}
			input[0][idx] = float32(v)
		}
		in = append(in, input[0]...)
		require.NoError(t, d.Run(ctx, input, output))
		out = append(out, output[0]...)
	}

	noiseIn := rmsDB(in[50*160 : 100*160])
	noiseOut := rmsDB(out[51*160 : 101*160])
	assert.Greater(t, noiseIn-noiseOut, 4.0, "noise: in:%v out:%v", noiseIn, noiseOut)

	toneIn := rmsDB(in[110*160 : 149*160])
	toneOut := rmsDB(out[111*160 : 150*160])
	assert.Less(t, math.Abs(toneIn-toneOut), 1.5, "tone: in:%v out:%v", toneIn, toneOut)
}

func TestDenoiserModelMismatch(t *testing.T) {
	ctx := context.Background()

	d := New()
	require.NoError(t, d.SetU32(effect.ParamInputSampleRate, 16000))
	require.NoError(t, d.SetString(effect.ParamModelPath, "builtin:denoiser_48k"))
	require.ErrorIs(t, d.Load(ctx), effect.ErrModel)
	// a failed load leaves the effect configurable
	require.NoError(t, d.SetString(effect.ParamModelPath, "builtin:superres_16k_to_48k"))
	require.ErrorIs(t, d.Load(ctx), effect.ErrModel)

	modelPath := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte("kind: denoiser\n"), 0640))
	require.NoError(t, d.SetString(effect.ParamModelPath, modelPath))
	require.ErrorIs(t, d.Load(ctx), effect.ErrModel)

	require.NoError(t, d.SetU32(effect.ParamInputSampleRate, 22050))
	require.NoError(t, d.SetString(effect.ParamModelPath, ""))
	require.ErrorIs(t, d.Load(ctx), effect.ErrModel)

	require.NoError(t, d.Close())
	require.ErrorIs(t, d.Close(), effect.ErrClosed)
}

func TestDenoiser48k(t *testing.T) {
	d := New()
	require.NoError(t, d.SetU32(effect.ParamInputSampleRate, 48000))
	require.NoError(t, d.Load(context.Background()))
	defer d.Close()
	frameSize, err := d.GetU32(effect.ParamNumInputSamplesPerFrame)
	require.NoError(t, err)
	assert.Equal(t, uint32(480), frameSize)
}
