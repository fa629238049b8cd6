package planar

import (
	"fmt"

	"github.com/xaionaro-go/audiofx/pkg/audio"
)

// Planarize converts interleaved samples ("LRLRLR") of the given sample size
// into planar ones ("LLLRRR"). input and output must not overlap.
func Planarize(channels audio.Channel, sampleSize uint, output, input []byte) error {
	if err := checkLengths(channels, sampleSize, output, input); err != nil {
		return err
	}

	samplesPerChan := len(input) / int(channels) / int(sampleSize)

	for ch := audio.Channel(0); ch < channels; ch++ {
		inIdxOffset := int(sampleSize) * int(ch)
		outIdxOffset := int(ch) * samplesPerChan * int(sampleSize)
		for samplePos := 0; samplePos < samplesPerChan; samplePos++ {
			inIdx := inIdxOffset + samplePos*(int(sampleSize)*int(channels))
			outIdx := outIdxOffset + samplePos*int(sampleSize)
			copy(output[outIdx:outIdx+int(sampleSize)], input[inIdx:inIdx+int(sampleSize)])
		}
	}

	return nil
}

func checkLengths(channels audio.Channel, sampleSize uint, output, input []byte) error {
	if channels == 0 || sampleSize == 0 {
		return fmt.Errorf("channels and sample size must be positive: %d, %d", channels, sampleSize)
	}
	shortestMessageSize := int(channels) * int(sampleSize)
	if len(input) < shortestMessageSize {
		return fmt.Errorf("the provided input buffer is too short: %d < %d", len(input), shortestMessageSize)
	}
	if len(input)%shortestMessageSize != 0 {
		return fmt.Errorf("expected a message length that is a multiple of %d, but received %d", shortestMessageSize, len(input))
	}
	if len(input) != len(output) {
		return fmt.Errorf("the lengths of input and output are not equal: %d != %d", len(input), len(output))
	}
	return nil
}
