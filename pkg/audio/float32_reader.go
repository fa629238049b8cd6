package audio

import (
	"encoding/binary"
	"io"
	"math"
)

// Float32Reader is implemented by sources of interleaved float32 samples
// (for example *oggvorbis.Reader).
type Float32Reader interface {
	Read(p []float32) (int, error)
}

type readerFromFloat32Reader struct {
	Float32Reader
	buf []float32
}

var _ io.Reader = (*readerFromFloat32Reader)(nil)

func newReaderFromFloat32Reader(r Float32Reader) *readerFromFloat32Reader {
	return &readerFromFloat32Reader{
		Float32Reader: r,
	}
}

// Read encodes float32 samples as little-endian bytes.
func (r *readerFromFloat32Reader) Read(p []byte) (int, error) {
	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}
	if cap(r.buf) < samples {
		r.buf = make([]float32, samples)
	}
	n, err := r.Float32Reader.Read(r.buf[:samples])
	for idx, v := range r.buf[:n] {
		binary.LittleEndian.PutUint32(p[idx*4:], math.Float32bits(v))
	}
	return n * 4, err
}
