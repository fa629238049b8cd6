package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type sliceFloat32Reader struct {
	samples []float32
}

func (r *sliceFloat32Reader) Read(p []float32) (int, error) {
	if len(r.samples) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.samples)
	r.samples = r.samples[n:]
	return n, nil
}

func TestReaderFromFloat32Reader(t *testing.T) {
	r := newReaderFromFloat32Reader(&sliceFloat32Reader{samples: []float32{0.5, -1, 0.25}})
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, b, 12)
	require.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(b[0:])))
	require.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
	require.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(b[8:])))
}
