package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureAlignment(t *testing.T) {
	impulse := func(at int) []float32 {
		s := make([]float32, 1000)
		s[at] = 1
		return s
	}

	t.Run("ahead_by_10", func(t *testing.T) {
		a, err := MeasureAlignment(impulse(500), impulse(490), 16000)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, a.Shift, 0.5)
		assert.Greater(t, a.Confidence, 0.4)
	})

	t.Run("delayed_by_10", func(t *testing.T) {
		a, err := MeasureAlignment(impulse(500), impulse(510), 16000)
		require.NoError(t, err)
		assert.InDelta(t, -10.0, a.Shift, 0.5)
		assert.Greater(t, a.Confidence, 0.4)
	})

	t.Run("no_shift", func(t *testing.T) {
		a, err := MeasureAlignment(impulse(500), impulse(500), 16000)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, a.Shift, 0.5)
	})

	t.Run("chirp_delayed_by_160", func(t *testing.T) {
		ref := make([]float32, 4000)
		for idx := range ref {
			x := float64(idx) / 16000
			ref[idx] = float32(math.Sin(2 * math.Pi * (200 + 3000*x) * x))
		}
		comp := make([]float32, len(ref))
		copy(comp[160:], ref)
		a, err := MeasureAlignment(ref, comp, 16000)
		require.NoError(t, err)
		assert.InDelta(t, -160.0, a.Shift, 0.5)
	})

	t.Run("noisy_tone_delayed_by_160", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		ref := make([]float32, 5000)
		for idx := range ref {
			ref[idx] = float32(0.3*math.Sin(2*math.Pi*440*float64(idx)/16000) + 0.05*rng.NormFloat64())
		}
		comp := make([]float32, len(ref))
		copy(comp[160:], ref)
		a, err := MeasureAlignment(ref, comp, 16000)
		require.NoError(t, err)
		assert.InDelta(t, -160.0, a.Shift, 0.5)

		a, err = MeasureAlignment(ref, ref, 16000)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, a.Shift, 0.5)
	})

	t.Run("silence", func(t *testing.T) {
		a, err := MeasureAlignment(make([]float32, 100), make([]float32, 100), 16000)
		require.NoError(t, err)
		assert.Zero(t, a.Confidence)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := MeasureAlignment(nil, impulse(1), 16000)
		require.Error(t, err)
		_, err = MeasureAlignment(impulse(1), impulse(1), 0)
		require.Error(t, err)
	})
}
