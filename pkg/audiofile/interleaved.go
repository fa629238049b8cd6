package audiofile

import (
	"fmt"
	"io"

	"github.com/xaionaro-go/audiofx/pkg/audio"
)

// InterleavedReader reads a Source as interleaved float32 samples.
type InterleavedReader struct {
	source Source
	planar [][]float32
}

var _ audio.Float32Reader = (*InterleavedReader)(nil)

func NewInterleavedReader(source Source) *InterleavedReader {
	return &InterleavedReader{
		source: source,
		planar: make([][]float32, source.Channels()),
	}
}

// Read fills p with whole frames; len(p) must fit at least one frame.
func (r *InterleavedReader) Read(p []float32) (int, error) {
	channels := len(r.planar)
	frames := len(p) / channels
	if frames == 0 {
		return 0, fmt.Errorf("the buffer of %d samples cannot fit a frame of %d channels: %w", len(p), channels, io.ErrShortBuffer)
	}
	for ch := range r.planar {
		if cap(r.planar[ch]) < frames {
			r.planar[ch] = make([]float32, frames)
		}
		r.planar[ch] = r.planar[ch][:frames]
	}
	n, err := r.source.Read(r.planar)
	if err != nil {
		return 0, err
	}
	for idx := 0; idx < n; idx++ {
		for ch := 0; ch < channels; ch++ {
			p[idx*channels+ch] = r.planar[ch][idx]
		}
	}
	return n * channels, nil
}
