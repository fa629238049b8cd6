package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// AlignmentMinFreq and AlignmentMaxFreq bound the band used to align
	// two signals; outside it there is mostly rumble or nothing at all.
	AlignmentMinFreq = 100
	AlignmentMaxFreq = 7000

	// whitening skips the bins whose amplitude is 60 dB below the
	// strongest one
	whiteningThreshold = 0.001
)

// Alignment is the measured offset between two signals.
type Alignment struct {
	// Shift is in samples; it is positive if the comparison is ahead of
	// the reference and negative if it lags behind.
	Shift      float64
	Confidence float64
}

// MeasureAlignment estimates how much comparison is shifted relative to
// reference using the generalized cross-correlation with phase transform
// (GCC-PHAT).
func MeasureAlignment(reference, comparison []float32, sampleRate float64) (Alignment, error) {
	if sampleRate <= 0 {
		return Alignment{}, fmt.Errorf("sample rate must be positive: got %v", sampleRate)
	}
	if len(reference) == 0 || len(comparison) == 0 {
		return Alignment{}, fmt.Errorf("empty signal: %d and %d samples", len(reference), len(comparison))
	}

	n := 1
	for n < len(reference)+len(comparison)-1 {
		n <<= 1
	}
	return crossCorrelate(spectrum(reference, n), spectrum(comparison, n), sampleRate)
}

func spectrum(samples []float32, n int) []complex128 {
	padded := make([]complex128, n)
	for idx, v := range samples {
		padded[idx] = complex(float64(v), 0)
	}
	return fft.FFT(padded)
}

func crossCorrelate(ref, comp []complex128, sampleRate float64) (Alignment, error) {
	n := len(ref)
	binMin := int(AlignmentMinFreq * float64(n) / sampleRate)
	binMax := n / 2
	if AlignmentMaxFreq < sampleRate/2 {
		binMax = int(AlignmentMaxFreq * float64(n) / sampleRate)
	}

	cross := make([]complex128, n)
	var maxMag float64
	for idx := range cross {
		cross[idx] = comp[idx] * cmplx.Conj(ref[idx])
		maxMag = max(maxMag, cmplx.Abs(cross[idx]))
	}

	// the cross spectrum is a product of two amplitudes
	floor := maxMag * whiteningThreshold * whiteningThreshold

	activeBins := 0
	for idx, c := range cross {
		bin := idx
		if idx > n/2 {
			bin = n - idx
		}
		mag := cmplx.Abs(c)
		if bin < binMin || bin > binMax || mag <= floor || mag <= 1e-12 {
			cross[idx] = 0
			continue
		}
		cross[idx] = c / complex(mag, 0)
		activeBins++
	}
	if activeBins == 0 {
		return Alignment{}, nil
	}

	correlation := fft.IFFT(cross)
	peakIdx, peak := 0, -1.0
	for idx, c := range correlation {
		if v := cmplx.Abs(c); v > peak {
			peakIdx, peak = idx, v
		}
	}

	// the peak is at the lag of comp relative to ref
	lag := float64(peakIdx)
	if peakIdx > n/2 {
		lag -= float64(n)
	}
	if peakIdx > 0 && peakIdx < n-1 {
		y1 := cmplx.Abs(correlation[peakIdx-1])
		y3 := cmplx.Abs(correlation[peakIdx+1])
		if denom := y1 - 2*peak + y3; math.Abs(denom) > 1e-12 {
			lag += (y1 - y3) / (2 * denom)
		}
	}

	// a perfect match puts activeBins/n into the peak
	return Alignment{
		Shift:      -lag,
		Confidence: min(1, peak*float64(n)/float64(activeBins)),
	}, nil
}
