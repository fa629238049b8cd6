// Package analysis measures level and spectral statistics of planar audio.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/brettbuddin/fourier"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

const (
	// FFTSize is the amount of samples per spectrum estimate.
	FFTSize = 1024

	// MinDBFS is reported for digital silence.
	MinDBFS = -200.0

	NoiseFloorPercentile = 0.1
	RolloffFraction      = 0.95
)

// Report is the summary of everything written to a Meter.
type Report struct {
	SampleRate     uint32
	Channels       uint32
	Samples        int64
	RMSDBFS        float64
	PeakDBFS       float64
	NoiseFloorDBFS float64
	RolloffHz      float64
}

func (r Report) String() string {
	return fmt.Sprintf(
		"%d samples x %d channels @ %d Hz: rms %.1f dBFS, peak %.1f dBFS, noise floor %.1f dBFS, 95%% roll-off %.0f Hz",
		r.Samples, r.Channels, r.SampleRate, r.RMSDBFS, r.PeakDBFS, r.NoiseFloorDBFS, r.RolloffHz,
	)
}

// Meter accumulates statistics over a stream; it is not safe for
// concurrent use.
type Meter struct {
	sampleRate uint32
	channels   uint32

	samples int64
	sumSq   float64
	peak    float64

	blockSize   int
	blockSumSq  float64
	blockFill   int
	blockEnergy []float64

	window   []float64
	fftBuf   []complex128
	fftFill  int
	spectrum []float64
}

func NewMeter(sampleRate, channels uint32) (*Meter, error) {
	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("invalid stream shape: %d channels at %d Hz", channels, sampleRate)
	}
	w, err := window.Hann(FFTSize, window.WithPeriodic())
	if err != nil {
		return nil, fmt.Errorf("unable to build the analysis window: %w", err)
	}
	return &Meter{
		sampleRate: sampleRate,
		channels:   channels,
		blockSize:  max(1, int(sampleRate/100)),
		window:     w,
		fftBuf:     make([]complex128, FFTSize),
		spectrum:   make([]float64, FFTSize/2+1),
	}, nil
}

// Write accounts the first n samples of every channel.
func (m *Meter) Write(frames [][]float32, n int) error {
	if len(frames) != int(m.channels) {
		return fmt.Errorf("expected %d channels, received %d", m.channels, len(frames))
	}
	for ch := range frames {
		if len(frames[ch]) < n {
			return fmt.Errorf("channel %d has %d samples, expected at least %d", ch, len(frames[ch]), n)
		}
	}

	for idx := 0; idx < n; idx++ {
		var frameSumSq, mono float64
		for ch := range frames {
			v := float64(frames[ch][idx])
			frameSumSq += v * v
			mono += v
			if a := math.Abs(v); a > m.peak {
				m.peak = a
			}
		}
		m.sumSq += frameSumSq

		m.blockSumSq += frameSumSq
		m.blockFill++
		if m.blockFill == m.blockSize {
			m.blockEnergy = append(m.blockEnergy, m.blockSumSq/float64(m.blockSize*int(m.channels)))
			m.blockSumSq, m.blockFill = 0, 0
		}

		m.fftBuf[m.fftFill] = complex(mono/float64(m.channels)*m.window[m.fftFill], 0)
		m.fftFill++
		if m.fftFill == FFTSize {
			if err := m.accumulateSpectrum(); err != nil {
				return err
			}
		}
	}
	m.samples += int64(n)
	return nil
}

func (m *Meter) accumulateSpectrum() error {
	m.fftFill = 0
	if err := fourier.Forward(m.fftBuf); err != nil {
		return fmt.Errorf("unable to compute the spectrum: %w", err)
	}
	for bin := range m.spectrum {
		c := m.fftBuf[bin]
		m.spectrum[bin] += real(c)*real(c) + imag(c)*imag(c)
	}
	return nil
}

func (m *Meter) Report() Report {
	r := Report{
		SampleRate:     m.sampleRate,
		Channels:       m.channels,
		Samples:        m.samples,
		RMSDBFS:        MinDBFS,
		PeakDBFS:       amplitudeToDBFS(m.peak),
		NoiseFloorDBFS: MinDBFS,
	}
	if m.samples == 0 {
		return r
	}
	r.RMSDBFS = powerToDBFS(m.sumSq / float64(m.samples*int64(m.channels)))

	if len(m.blockEnergy) > 0 {
		energies := append([]float64(nil), m.blockEnergy...)
		sort.Float64s(energies)
		r.NoiseFloorDBFS = powerToDBFS(energies[int(float64(len(energies)-1)*NoiseFloorPercentile)])
	}

	var total float64
	for _, p := range m.spectrum {
		total += p
	}
	if total > 0 {
		var acc float64
		for bin, p := range m.spectrum {
			acc += p
			if acc >= total*RolloffFraction {
				r.RolloffHz = float64(bin) * float64(m.sampleRate) / FFTSize
				break
			}
		}
	}
	return r
}

func amplitudeToDBFS(a float64) float64 {
	if a <= 0 {
		return MinDBFS
	}
	return max(MinDBFS, 20*math.Log10(a))
}

func powerToDBFS(p float64) float64 {
	if p <= 0 {
		return MinDBFS
	}
	return max(MinDBFS, 10*math.Log10(p))
}
