package audiofile

import (
	"errors"
	"fmt"
	"io"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

const resampleBlockSize = 1024

// resampledSource converts the sample rate of another Source.
type resampledSource struct {
	source     Source
	resamplers []resampling.Resampler // one per channel: Process and Flush work on a single channel
	sampleRate uint32

	block    [][]float32
	input    []float64
	pending  [][]float64
	consumed int64
	emitted  int64
	eof      bool
}

var _ Source = (*resampledSource)(nil)

// NewResampledSource returns a Source that yields the samples of source at
// sampleRate. It returns the source itself if the rates already match.
func NewResampledSource(source Source, sampleRate uint32) (Source, error) {
	if source.SampleRate() == sampleRate {
		return source, nil
	}
	if sampleRate == 0 {
		return nil, fmt.Errorf("%w: zero sample rate", ErrUnsupported)
	}
	channels := int(source.Channels())
	resamplers := make([]resampling.Resampler, channels)
	for ch := range resamplers {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(source.SampleRate()),
			OutputRate: float64(sampleRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("unable to initialize a resampler from %d Hz to %d Hz: %w", source.SampleRate(), sampleRate, err)
		}
		resamplers[ch] = r
	}
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, resampleBlockSize)
	}
	return &resampledSource{
		source:     source,
		resamplers: resamplers,
		sampleRate: sampleRate,
		block:      block,
		input:      make([]float64, resampleBlockSize),
		pending:    make([][]float64, channels),
	}, nil
}

func (s *resampledSource) SampleRate() uint32 { return s.sampleRate }
func (s *resampledSource) Channels() uint32   { return uint32(len(s.resamplers)) }

func (s *resampledSource) Length() int64 {
	l := s.source.Length()
	if l < 0 {
		return -1
	}
	return s.convertedLength(l)
}

func (s *resampledSource) convertedLength(inLen int64) int64 {
	return int64(math.Round(float64(inLen) * float64(s.sampleRate) / float64(s.source.SampleRate())))
}

// available is the amount of samples buffered in every channel.
func (s *resampledSource) available() int {
	n := len(s.pending[0])
	for _, p := range s.pending[1:] {
		n = min(n, len(p))
	}
	return n
}

func (s *resampledSource) Read(dst [][]float32) (int, error) {
	samples, err := checkShape(dst, s.Channels())
	if err != nil {
		return 0, err
	}

	for s.available() < samples && !s.eof {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}

	available := s.available()
	if s.eof {
		available = min(available, int(s.convertedLength(s.consumed)-s.emitted))
	}
	n := min(samples, available)
	if n <= 0 {
		return 0, io.EOF
	}
	for ch := range dst {
		for idx, v := range s.pending[ch][:n] {
			dst[ch][idx] = float32(v)
		}
		s.pending[ch] = s.pending[ch][n:]
	}
	s.emitted += int64(n)
	return n, nil
}

func (s *resampledSource) fill() error {
	n, err := s.source.Read(s.block)
	switch {
	case errors.Is(err, io.EOF):
		for ch, r := range s.resamplers {
			tail, err := r.Flush()
			if err != nil {
				return fmt.Errorf("unable to flush the resampler of channel %d: %w", ch, err)
			}
			s.pending[ch] = append(s.pending[ch], tail...)
		}
		s.eof = true
		return nil
	case err != nil:
		return err
	}

	for ch, r := range s.resamplers {
		for idx, v := range s.block[ch][:n] {
			s.input[idx] = float64(v)
		}
		out, err := r.Process(s.input[:n])
		if err != nil {
			return fmt.Errorf("unable to resample channel %d: %w", ch, err)
		}
		s.pending[ch] = append(s.pending[ch], out...)
	}
	s.consumed += int64(n)
	return nil
}

func (s *resampledSource) Close() error {
	return s.source.Close()
}
