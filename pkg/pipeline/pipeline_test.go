package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/config"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	_ "github.com/xaionaro-go/audiofx/pkg/effect/implementations/chained"
)

const (
	nameCounting = effect.Name("pipeline_test_counting")
	nameFailing  = effect.Name("pipeline_test_failing")
)

var (
	closeCount atomic.Int64
)

// countingEffect is a passthrough that counts Close calls and may fail
// on a given frame.
type countingEffect struct {
	*effect.Dummy
	failAt int
	frames int
}

func (e *countingEffect) Run(ctx context.Context, input, output [][]float32) error {
	e.frames++
	if e.failAt > 0 && e.frames >= e.failAt {
		return errors.New("synthetic failure")
	}
	return e.Dummy.Run(ctx, input, output)
}

func (e *countingEffect) Close() error {
	closeCount.Add(1)
	return e.Dummy.Close()
}

func init() {
	effect.Register(nameCounting, func(context.Context) (effect.Effect, error) {
		return &countingEffect{Dummy: effect.NewDummy()}, nil
	})
	effect.Register(nameFailing, func(context.Context) (effect.Effect, error) {
		return &countingEffect{Dummy: effect.NewDummy(), failAt: 3}, nil
	})
}

func writeFixture(t *testing.T, path string, rate uint32, data [][]float32) {
	t.Helper()
	f, err := audiofile.CreateAtomic(path)
	require.NoError(t, err)
	sink, err := audiofile.NewWAVSink(f, rate, uint32(len(data)), audiofile.SampleFormatFloat32)
	require.NoError(t, err)
	require.NoError(t, sink.Write(data))
	require.NoError(t, sink.Close())
	require.NoError(t, f.Commit())
}

func readWAV(t *testing.T, path string) (audiofile.Source, [][]float32) {
	t.Helper()
	src, err := audiofile.OpenWAV(path)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	block := effect.NewBuffers(int(src.Channels()), 1000)
	result := make([][]float32, src.Channels())
	for {
		n, err := src.Read(block)
		if err != nil {
			break
		}
		for ch := range block {
			result[ch] = append(result[ch], block[ch][:n]...)
		}
	}
	return src, result
}

func noisyTone(samples int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, samples)
	for idx := range out {
		out[idx] = float32(0.3*math.Sin(2*math.Pi*440*float64(idx)/16000) + 0.05*rng.NormFloat64())
	}
	return out
}

func newConfig(dir string, name effect.Name) config.Config {
	cfg := config.Default()
	cfg.Effect = name
	cfg.Input = filepath.Join(dir, "in.wav")
	cfg.Output = filepath.Join(dir, "out.wav")
	return cfg
}

func requireNoOutput(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.Equal(t, "in.wav", entry.Name(), spew.Sdump(entries))
	}
}

func TestRunDenoiser(t *testing.T) {
	for _, channels := range []int{1, 2} {
		t.Run(fmt.Sprintf("channels_%d", channels), func(t *testing.T) {
			dir := t.TempDir()
			cfg := newConfig(dir, effect.NameDenoiser)
			data := make([][]float32, channels)
			for ch := range data {
				data[ch] = noisyTone(16050, int64(ch))
			}
			writeFixture(t, cfg.Input, 16000, data)

			result, err := Run(context.Background(), cfg)
			require.NoError(t, err)
			require.Equal(t, StatusOK, StatusOf(err))
			require.NotEmpty(t, result.RunID)
			require.Equal(t, int64(16050), result.SamplesWritten)
			require.Equal(t, uint32(channels), result.Info.OutputChannels)
			require.Less(t, result.Output.NoiseFloorDBFS, result.Input.NoiseFloorDBFS)

			src, out := readWAV(t, cfg.Output)
			require.Equal(t, uint32(16000), src.SampleRate())
			require.Len(t, out, channels)
			require.Len(t, out[0], 16050)
		})
	}
}

func TestRunZeroIntensityIsTransparent(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir, effect.NameDenoiser)
	cfg.Intensity = []float32{0}
	input := noisyTone(5000, 1)
	writeFixture(t, cfg.Input, 16000, [][]float32{input})

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Alignment)
	assert.InDelta(t, 0, result.Alignment.Shift, 0.5)

	_, out := readWAV(t, cfg.Output)
	require.Len(t, out[0], len(input))
	for idx := range input {
		require.InDelta(t, input[idx], out[0][idx], 1e-4, idx)
	}

	cfg.CompensateLatency = false
	result, err = Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int64(len(input)), result.SamplesWritten)
	require.NotNil(t, result.Alignment)
	assert.InDelta(t, -160, result.Alignment.Shift, 0.5)

	_, out = readWAV(t, cfg.Output)
	for idx := 160; idx < len(input); idx++ {
		require.InDelta(t, input[idx-160], out[0][idx], 1e-4, idx)
	}
}

func TestRunChained(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir, effect.NameDenoiserSuperRes)
	cfg.Intensity = []float32{1, 0.5}
	cfg.WholeFile = true
	writeFixture(t, cfg.Input, 16000, [][]float32{noisyTone(1600, 2)})

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(48000), result.Info.OutputSampleRate)
	require.Equal(t, int64(4800), result.SamplesWritten)

	src, out := readWAV(t, cfg.Output)
	require.Equal(t, uint32(48000), src.SampleRate())
	require.Len(t, out[0], 4800)
}

func TestRunResamplesInput(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir, effect.NamePassthrough)
	writeFixture(t, cfg.Input, 48000, [][]float32{noisyTone(4800, 3)})

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(16000), result.Info.InputSampleRate)
	require.LessOrEqual(t, result.SamplesWritten, int64(1600))
	require.Greater(t, result.SamplesWritten, int64(1300))
}

func TestRunFailures(t *testing.T) {
	type testCase struct {
		name   string
		mutate func(dir string, cfg *config.Config)
		status Status
		closes int64
	}
	for _, tc := range []testCase{
		{
			name:   "missing_input",
			mutate: func(dir string, cfg *config.Config) { cfg.Input = filepath.Join(dir, "missing.wav") },
			status: StatusFileNotFound,
			closes: 1,
		},
		{
			name:   "unknown_effect",
			mutate: func(dir string, cfg *config.Config) { cfg.Effect = "no_such_effect" },
			status: StatusEffectError,
		},
		{
			name:   "failing_effect",
			mutate: func(dir string, cfg *config.Config) { cfg.Effect = nameFailing },
			status: StatusEffectError,
			closes: 1,
		},
		{
			name:   "out_of_memory",
			mutate: func(dir string, cfg *config.Config) { cfg.MaxMemory = 100 },
			status: StatusOutOfMemory,
			closes: 1,
		},
		{
			name: "whole_file_out_of_memory",
			mutate: func(dir string, cfg *config.Config) {
				cfg.WholeFile = true
				cfg.MaxMemory = 8000
			},
			status: StatusOutOfMemory,
			closes: 1,
		},
		{
			name:   "invalid_intensity",
			mutate: func(dir string, cfg *config.Config) { cfg.Intensity = []float32{2} },
			status: StatusEffectError,
		},
		{
			name:   "unwritable_output",
			mutate: func(dir string, cfg *config.Config) { cfg.Output = filepath.Join(dir, "no", "such", "dir.wav") },
			status: StatusFileNotFound,
			closes: 1,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := newConfig(dir, nameCounting)
			writeFixture(t, cfg.Input, 16000, [][]float32{noisyTone(16000, 4)})
			tc.mutate(dir, &cfg)

			closeCount.Store(0)
			result, err := Run(context.Background(), cfg)
			require.Error(t, err)
			assert.Equal(t, tc.status, StatusOf(err), err.Error())
			assert.Zero(t, result.SamplesWritten)
			assert.Equal(t, tc.closes, closeCount.Load())
			requireNoOutput(t, dir)
		})
	}
}

func TestRunTooManyChannels(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir, nameCounting)
	writeFixture(t, cfg.Input, 16000, [][]float32{
		noisyTone(160, 5), noisyTone(160, 6), noisyTone(160, 7),
	})

	closeCount.Store(0)
	_, err := Run(context.Background(), cfg)
	require.Equal(t, StatusEffectError, StatusOf(err))
	require.Equal(t, int64(1), closeCount.Load())
	requireNoOutput(t, dir)
}

func TestRunRawStream(t *testing.T) {
	// many times the stream buffers, with a trailing partial frame
	const frames = 80003

	dir := t.TempDir()
	input := make([]byte, 2*2*frames)
	rng := rand.New(rand.NewSource(8))
	rng.Read(input)
	inPath := filepath.Join(dir, "in.pcm")
	require.NoError(t, os.WriteFile(inPath, input, 0640))

	cfg := config.Default()
	cfg.Effect = effect.NamePassthrough
	cfg.Input = inPath
	cfg.Output = filepath.Join(dir, "out.pcm")
	cfg.RawPCMFormat = "s16le"
	cfg.RawChannels = 2

	for attempt := 0; attempt < 3; attempt++ {
		result, err := Run(context.Background(), cfg)
		require.NoError(t, err)
		require.Equal(t, uint64(len(input)), result.BytesWritten)
		require.Equal(t, int64(frames), result.SamplesWritten)

		output, err := os.ReadFile(cfg.Output)
		require.NoError(t, err)
		require.Len(t, output, len(input))
		require.True(t, bytes.Equal(input, output), "attempt %d", attempt)
	}

	cfg.Output = filepath.Join(dir, "out.wav")
	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int64(frames), result.SamplesWritten)
	src, out := readWAV(t, cfg.Output)
	require.Equal(t, uint32(2), src.Channels())
	require.Len(t, out[1], frames)
	for idx := 0; idx < frames; idx += 997 {
		expected := float32(int16(uint16(input[idx*4+2])|uint16(input[idx*4+3])<<8)) / 32768
		require.InDelta(t, expected, out[1][idx], 1e-6, "sample %d", idx)
	}
}

func TestPlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	writeFixture(t, path, 16000, [][]float32{noisyTone(1600, 9)})
	require.NoError(t, Play(context.Background(), path, audiofile.OpenOptions{}))
	err := Play(context.Background(), filepath.Join(dir, "missing.ogg"), audiofile.OpenOptions{})
	require.Equal(t, StatusFileNotFound, StatusOf(err))
}

func TestStatusOf(t *testing.T) {
	for expected, err := range map[Status]error{
		StatusOK:           nil,
		StatusEffectError:  fmt.Errorf("%w: x", ErrEffect),
		StatusAudioIOError: fmt.Errorf("%w: x", ErrAudioIO),
		StatusFileNotFound: fmt.Errorf("%w: %w", ErrAudioIO, audiofile.ErrNotFound),
		StatusOutOfMemory:  multierror.Append(fmt.Errorf("%w", ErrOutOfMemory), fmt.Errorf("%w: cleanup", ErrAudioIO)),
	} {
		assert.Equal(t, expected, StatusOf(err), expected.String())
	}
	assert.Equal(t, "Status(42)", Status(42).String())
}
