package planar

import (
	"github.com/xaionaro-go/audiofx/pkg/audio"
)

// Unplanarize is the inverse of Planarize.
func Unplanarize(channels audio.Channel, sampleSize uint, output, input []byte) error {
	if err := checkLengths(channels, sampleSize, output, input); err != nil {
		return err
	}

	samplesPerChan := len(input) / int(channels) / int(sampleSize)

	for ch := audio.Channel(0); ch < channels; ch++ {
		inIdxOffset := int(ch) * samplesPerChan * int(sampleSize)
		outIdxOffset := int(sampleSize) * int(ch)
		for samplePos := 0; samplePos < samplesPerChan; samplePos++ {
			inIdx := inIdxOffset + samplePos*int(sampleSize)
			outIdx := outIdxOffset + samplePos*(int(sampleSize)*int(channels))
			copy(output[outIdx:outIdx+int(sampleSize)], input[inIdx:inIdx+int(sampleSize)])
		}
	}

	return nil
}
