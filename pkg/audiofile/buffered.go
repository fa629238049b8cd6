package audiofile

import (
	"errors"
	"fmt"
	"io"
)

// bufferedSource holds a whole decoded file in memory.
type bufferedSource struct {
	sampleRate uint32
	data       [][]float32
	offset     int
}

var _ Source = (*bufferedSource)(nil)

// ReadAll decodes the whole source into memory and closes it. maxSamples
// limits the total amount of samples over all channels (0 is unlimited);
// exceeding it yields ErrTooLarge.
func ReadAll(source Source, maxSamples int64) (_ret Source, _err error) {
	defer func() {
		if err := source.Close(); err != nil && _err == nil {
			_ret, _err = nil, fmt.Errorf("unable to close the source: %w", err)
		}
	}()

	channels := int(source.Channels())
	data := make([][]float32, channels)
	if l := source.Length(); l > 0 && (maxSamples == 0 || l*int64(channels) <= maxSamples) {
		for ch := range data {
			data[ch] = make([]float32, 0, l)
		}
	}
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, resampleBlockSize)
	}

	var total int64
	for {
		n, err := source.Read(block)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		total += int64(n) * int64(channels)
		if maxSamples > 0 && total > maxSamples {
			return nil, fmt.Errorf("%w: more than %d samples", ErrTooLarge, maxSamples)
		}
		for ch := range data {
			data[ch] = append(data[ch], block[ch][:n]...)
		}
	}
	return &bufferedSource{
		sampleRate: source.SampleRate(),
		data:       data,
	}, nil
}

func (s *bufferedSource) SampleRate() uint32 { return s.sampleRate }
func (s *bufferedSource) Channels() uint32   { return uint32(len(s.data)) }
func (s *bufferedSource) Length() int64      { return int64(len(s.data[0])) }

func (s *bufferedSource) Read(dst [][]float32) (int, error) {
	samples, err := checkShape(dst, s.Channels())
	if err != nil {
		return 0, err
	}
	n := min(samples, len(s.data[0])-s.offset)
	if n <= 0 {
		return 0, io.EOF
	}
	for ch := range dst {
		copy(dst[ch], s.data[ch][s.offset:s.offset+n])
	}
	s.offset += n
	return n, nil
}

func (s *bufferedSource) Close() error {
	return nil
}
