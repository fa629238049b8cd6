package effect

import (
	"math"
)

// OutputWindow tracks which output samples of a stream are kept: the first
// latency samples are dropped if requested, and once the input has ended
// the output is cut at round(inputSamples*outRate/inRate).
type OutputWindow struct {
	inRate  uint32
	outRate uint32
	skip    int64

	inputSamples int64
	kept         int64
	final        bool
}

func NewOutputWindow(info Info, compensateLatency bool) *OutputWindow {
	w := &OutputWindow{
		inRate:  info.InputSampleRate,
		outRate: info.OutputSampleRate,
	}
	if compensateLatency {
		w.skip = int64(info.LatencySamples)
	}
	return w
}

// AddInput accounts real (not padding) input samples per channel.
func (w *OutputWindow) AddInput(samples int) {
	w.inputSamples += int64(samples)
}

// Finish marks the end of the input.
func (w *OutputWindow) Finish() {
	w.final = true
}

// Target is the expected output length for the input accounted so far.
func (w *OutputWindow) Target() int64 {
	return int64(math.Round(float64(w.inputSamples) * float64(w.outRate) / float64(w.inRate)))
}

// Keep returns the range [from, to) of an output frame of n samples that
// belongs to the output.
func (w *OutputWindow) Keep(n int) (from, to int) {
	from = int(min(w.skip, int64(n)))
	w.skip -= int64(from)
	to = n
	if w.final {
		remaining := max(0, w.Target()-w.kept)
		to = from + int(min(int64(to-from), remaining))
	}
	w.kept += int64(to - from)
	return from, to
}

// Done reports whether the whole output has been produced.
func (w *OutputWindow) Done() bool {
	return w.final && w.kept >= w.Target()
}

// Kept is the amount of output samples per channel kept so far.
func (w *OutputWindow) Kept() int64 {
	return w.kept
}
