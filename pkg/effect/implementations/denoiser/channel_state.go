package denoiser

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/xaionaro-go/audiofx/pkg/model"
)

const powerEpsilon = 1e-20

type channelState struct {
	hop     int
	fftSize int
	window  []float64
	params  *model.Descriptor

	floorGain float64

	history []float64
	olaTail []float64
	frame   []float64

	frameCount     uint32
	initialSum     []float64
	smoothedPower  []float64
	minCurrent     []float64
	minPrevious    []float64
	minWindowCount uint32
	noise          []float64
	gain           []float64
}

func newChannelState(params *model.Descriptor, window []float64) *channelState {
	hop := int(params.FrameSize)
	fftSize := int(params.FFTSize)
	bins := fftSize/2 + 1
	s := &channelState{
		hop:           hop,
		fftSize:       fftSize,
		window:        window,
		params:        params,
		floorGain:     math.Pow(10, params.Gain.FloorDB/20),
		history:       make([]float64, hop),
		olaTail:       make([]float64, hop),
		frame:         make([]float64, fftSize),
		initialSum:    make([]float64, bins),
		smoothedPower: make([]float64, bins),
		minCurrent:    make([]float64, bins),
		minPrevious:   make([]float64, bins),
		noise:         make([]float64, bins),
		gain:          make([]float64, bins),
	}
	for k := range s.minCurrent {
		s.minCurrent[k] = math.Inf(1)
		s.minPrevious[k] = math.Inf(1)
	}
	return s
}

// process consumes one hop of input and emits one hop of output delayed by
// exactly one hop.
func (s *channelState) process(input, output []float32, intensity float64) {
	hop := s.hop
	for idx := 0; idx < hop; idx++ {
		s.frame[idx] = s.history[idx] * s.window[idx]
		s.frame[hop+idx] = float64(input[idx]) * s.window[hop+idx]
		s.history[idx] = float64(input[idx])
	}
	for idx := 2 * hop; idx < s.fftSize; idx++ {
		s.frame[idx] = 0
	}

	spectrum := fft.FFTReal(s.frame)
	s.updateGain(spectrum)

	for k := range s.gain {
		g := 1 - intensity*(1-s.gain[k])
		spectrum[k] *= complex(g, 0)
		if k > 0 && k < s.fftSize/2 {
			spectrum[s.fftSize-k] *= complex(g, 0)
		}
	}

	synthesized := fft.IFFT(spectrum)
	for idx := 0; idx < hop; idx++ {
		head := real(synthesized[idx]) * s.window[idx]
		output[idx] = float32(s.olaTail[idx] + head)
		s.olaTail[idx] = real(synthesized[hop+idx]) * s.window[hop+idx]
	}
}

func (s *channelState) updateGain(spectrum []complex128) {
	p := s.params
	first := s.frameCount == 0
	for k := range s.gain {
		power := real(spectrum[k])*real(spectrum[k]) + imag(spectrum[k])*imag(spectrum[k])

		if first {
			s.smoothedPower[k] = power
		} else {
			s.smoothedPower[k] = p.Noise.Smoothing*s.smoothedPower[k] + (1-p.Noise.Smoothing)*power
		}
		s.minCurrent[k] = math.Min(s.minCurrent[k], s.smoothedPower[k])

		if s.frameCount < p.Noise.InitialFrames {
			s.initialSum[k] += power
			s.noise[k] = s.initialSum[k] / float64(s.frameCount+1)
		} else {
			s.noise[k] = p.Noise.Bias * math.Min(s.minCurrent[k], s.minPrevious[k])
		}

		g := s.floorGain
		if power > powerEpsilon {
			g = math.Max(1-p.Gain.OverSubtraction*s.noise[k]/power, s.floorGain)
		}
		if first {
			s.gain[k] = g
		} else {
			s.gain[k] = p.Gain.Smoothing*s.gain[k] + (1-p.Gain.Smoothing)*g
		}
	}

	s.minWindowCount++
	if s.minWindowCount >= p.Noise.WindowFrames {
		copy(s.minPrevious, s.minCurrent)
		copy(s.minCurrent, s.smoothedPower)
		s.minWindowCount = 0
	}
	s.frameCount++
}
