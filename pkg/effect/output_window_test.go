package effect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputWindow(t *testing.T) {
	info := Info{
		InputSampleRate:  16000,
		OutputSampleRate: 48000,
		LatencySamples:   500,
	}

	t.Run("compensated", func(t *testing.T) {
		w := NewOutputWindow(info, true)
		var total int
		w.AddInput(160)
		from, to := w.Keep(480)
		require.Equal(t, 480, from)
		require.Equal(t, 480, to)

		w.AddInput(100)
		w.Finish()
		from, to = w.Keep(480)
		require.Equal(t, 20, from)
		total += to - from
		for !w.Done() {
			from, to = w.Keep(480)
			total += to - from
		}
		require.Equal(t, 780, total)
		require.Equal(t, int64(780), w.Kept())
		require.Equal(t, int64(780), w.Target())
	})

	t.Run("uncompensated", func(t *testing.T) {
		w := NewOutputWindow(info, false)
		w.AddInput(160)
		from, to := w.Keep(480)
		require.Equal(t, 0, from)
		require.Equal(t, 480, to)
		w.AddInput(1)
		w.Finish()
		from, to = w.Keep(480)
		require.Equal(t, 0, from)
		require.Equal(t, 3, to)
		require.True(t, w.Done())
	})
}
