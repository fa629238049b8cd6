package planar

import (
	"fmt"

	"github.com/xaionaro-go/audiofx/pkg/audio"
)

// Decode converts interleaved PCM into per-channel float32 slices.
//
// Every dst[ch] must be able to hold len(input)/(channels*format.Size()) samples;
// scratch is reused between calls and is grown if needed.
func Decode(
	dst [][]float32,
	format audio.PCMFormat,
	input []byte,
	scratch *[]byte,
) (int, error) {
	channels := audio.Channel(len(dst))
	sampleSize := format.Size()
	if sampleSize == 0 {
		return 0, fmt.Errorf("unsupported PCM format %v", format)
	}
	if cap(*scratch) < len(input) {
		*scratch = make([]byte, len(input))
	}
	buf := (*scratch)[:len(input)]
	if err := Planarize(channels, sampleSize, buf, input); err != nil {
		return 0, fmt.Errorf("unable to planarize: %w", err)
	}

	samplesPerChan := len(input) / int(channels) / int(sampleSize)
	for ch := range dst {
		if len(dst[ch]) < samplesPerChan {
			return 0, fmt.Errorf("channel %d buffer is too short: %d < %d", ch, len(dst[ch]), samplesPerChan)
		}
		chanBytes := buf[ch*samplesPerChan*int(sampleSize):]
		for idx := 0; idx < samplesPerChan; idx++ {
			dst[ch][idx] = float32(format.Decode(chanBytes[idx*int(sampleSize):]))
		}
	}
	return samplesPerChan, nil
}

// Encode converts the first samples of each src[ch] into interleaved PCM
// written to output, which must be exactly samples*channels*format.Size() long.
func Encode(
	output []byte,
	format audio.PCMFormat,
	src [][]float32,
	samples int,
	scratch *[]byte,
) error {
	channels := audio.Channel(len(src))
	sampleSize := format.Size()
	if sampleSize == 0 {
		return fmt.Errorf("unsupported PCM format %v", format)
	}
	expected := samples * int(channels) * int(sampleSize)
	if len(output) != expected {
		return fmt.Errorf("output buffer length mismatch: %d != %d", len(output), expected)
	}
	if cap(*scratch) < expected {
		*scratch = make([]byte, expected)
	}
	buf := (*scratch)[:expected]
	for ch := range src {
		if len(src[ch]) < samples {
			return fmt.Errorf("channel %d buffer is too short: %d < %d", ch, len(src[ch]), samples)
		}
		chanBytes := buf[ch*samples*int(sampleSize):]
		for idx := 0; idx < samples; idx++ {
			format.Encode(chanBytes[idx*int(sampleSize):], float64(src[ch][idx]))
		}
	}
	if err := Unplanarize(channels, sampleSize, output, buf); err != nil {
		return fmt.Errorf("unable to unplanarize: %w", err)
	}
	return nil
}
