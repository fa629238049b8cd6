package resampler

import (
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audio/types"
)

const (
	distanceStep = 10000
)

type Format struct {
	Channels   audio.Channel
	SampleRate audio.SampleRate
	PCMFormat  types.PCMFormat
}

type precalculated struct {
	inSampleSize    uint
	outSampleSize   uint
	inFrameSize     uint
	outFrameSize    uint
	outDistanceStep uint64
}

type Resampler struct {
	inReader    io.Reader
	inFormat    Format
	outFormat   Format
	inDistance  uint64
	outDistance uint64
	locker      sync.Mutex
	buffer      []byte
	precalculated
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	r := &Resampler{
		inReader:  inReader,
		inFormat:  inFormat,
		outFormat: outFormat,
	}
	err := r.init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %#+v to %#+v: %w", inFormat, outFormat, err)
	}
	return r, nil
}

func (r *Resampler) init() error {
	r.inSampleSize = uint(r.inFormat.PCMFormat.Size())
	r.outSampleSize = uint(r.outFormat.PCMFormat.Size())

	if r.inSampleSize == 0 || r.outSampleSize == 0 {
		return fmt.Errorf("unsupported PCM format: %v -> %v", r.inFormat.PCMFormat, r.outFormat.PCMFormat)
	}
	if r.inFormat.Channels == 0 || r.outFormat.Channels == 0 {
		return fmt.Errorf("the amount of channels must be positive")
	}
	if r.inFormat.Channels != r.outFormat.Channels && r.inFormat.Channels != 1 && r.outFormat.Channels != 1 {
		return fmt.Errorf("do not know how to convert %d channels to %d", r.inFormat.Channels, r.outFormat.Channels)
	}
	r.inFrameSize = r.inSampleSize * uint(r.inFormat.Channels)
	r.outFrameSize = r.outSampleSize * uint(r.outFormat.Channels)

	sampleRateAdjust := float64(r.outFormat.SampleRate) / float64(r.inFormat.SampleRate)
	r.outDistanceStep = uint64(float64(distanceStep) / sampleRateAdjust)

	r.inDistance = 0
	r.outDistance = 0

	return nil
}

// Read fills p with whole output frames; a frame is one sample per channel.
func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	maxOutFrames := uint64(len(p)) / uint64(r.outFrameSize)
	if maxOutFrames == 0 {
		return 0, nil
	}

	framesToRead := uint64(float64(maxOutFrames) * float64(r.inFormat.SampleRate) / float64(r.outFormat.SampleRate))
	if framesToRead == 0 {
		framesToRead = 1
	}
	bytesToRead := framesToRead * uint64(r.inFrameSize)
	if cap(r.buffer) < int(bytesToRead) {
		r.buffer = make([]byte, bytesToRead)
	} else {
		r.buffer = r.buffer[:bytesToRead]
	}
	n, err := io.ReadAtLeast(r.inReader, r.buffer, int(r.inFrameSize))
	switch {
	case err == io.ErrUnexpectedEOF:
		return 0, fmt.Errorf("read a number of bytes (%d) that is not a multiple of %d", n, r.inFrameSize)
	case err != nil && n == 0:
		return 0, err
	}
	if n%int(r.inFrameSize) != 0 {
		return 0, fmt.Errorf("read a number of bytes (%d) that is not a multiple of %d", n, r.inFrameSize)
	}
	r.buffer = r.buffer[:n]
	framesRead := uint64(n) / uint64(r.inFrameSize)

	inChannels := uint64(r.inFormat.Channels)
	outChannels := uint64(r.outFormat.Channels)
	frame := make([]float64, max(inChannels, outChannels))

	dstFrameIdx := uint64(0)
	srcFrameIdx := uint64(0)
	for srcFrameIdx < framesRead && dstFrameIdx < maxOutFrames {
		// If we are too far ahead in input distance, skip input frames
		for r.inDistance < r.outDistance && srcFrameIdx < framesRead {
			srcFrameIdx++
			r.inDistance += distanceStep
		}
		if srcFrameIdx >= framesRead {
			break
		}

		idxSrc := srcFrameIdx * uint64(r.inFrameSize)
		switch {
		case inChannels == outChannels:
			for ch := uint64(0); ch < inChannels; ch++ {
				frame[ch] = r.inFormat.PCMFormat.Decode(r.buffer[idxSrc+ch*uint64(r.inSampleSize):])
			}
		case outChannels == 1:
			var sum float64
			for ch := uint64(0); ch < inChannels; ch++ {
				sum += r.inFormat.PCMFormat.Decode(r.buffer[idxSrc+ch*uint64(r.inSampleSize):])
			}
			frame[0] = sum / float64(inChannels)
		default: // mono input, repeated to every output channel
			val := r.inFormat.PCMFormat.Decode(r.buffer[idxSrc:])
			for ch := uint64(0); ch < outChannels; ch++ {
				frame[ch] = val
			}
		}

		// Write the output frame (possibly repeated in time)
		for dstFrameIdx < maxOutFrames && r.outDistance <= r.inDistance {
			idxDst := dstFrameIdx * uint64(r.outFrameSize)
			for ch := uint64(0); ch < outChannels; ch++ {
				r.outFormat.PCMFormat.Encode(p[idxDst+ch*uint64(r.outSampleSize):], frame[ch])
			}
			dstFrameIdx++
			r.outDistance += r.outDistanceStep
		}

		srcFrameIdx++
		r.inDistance += distanceStep
	}

	return int(dstFrameIdx * uint64(r.outFrameSize)), nil
}
