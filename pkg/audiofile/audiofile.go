// Package audiofile reads and writes audio as planar float32 frames.
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrUnsupported = errors.New("unsupported audio format")
	ErrTooLarge    = errors.New("audio is too large")
)

// Source yields planar samples.
type Source interface {
	io.Closer
	SampleRate() uint32
	Channels() uint32

	// Length is the amount of samples per channel, or -1 if unknown.
	Length() int64

	// Read fills dst[ch][:n] for every channel. n is less than len(dst[0])
	// only at the end of the stream; io.EOF is returned when n is zero.
	Read(dst [][]float32) (int, error)
}

// Sink consumes planar samples; all the channels have the same length.
type Sink interface {
	io.Closer
	Write(src [][]float32) error
}

type Container string

const (
	ContainerAuto = Container("auto")
	ContainerWAV  = Container("wav")
	ContainerOgg  = Container("ogg")
	ContainerRaw  = Container("raw")
)

func ParseContainer(s string) (Container, error) {
	switch c := Container(strings.ToLower(s)); c {
	case "", ContainerAuto:
		return ContainerAuto, nil
	case ContainerWAV, ContainerOgg, ContainerRaw:
		return c, nil
	}
	return "", fmt.Errorf("%w: container '%s'", ErrUnsupported, s)
}

// DetectContainer guesses the container from the file name; it returns
// ContainerAuto for an unknown extension.
func DetectContainer(path string) Container {
	lower := strings.ToLower(path)
	switch {
	case path == StdStream:
		return ContainerRaw
	case strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave"):
		return ContainerWAV
	case strings.HasSuffix(lower, ".ogg") || strings.HasSuffix(lower, ".oga"):
		return ContainerOgg
	case strings.HasSuffix(lower, ".raw") || strings.HasSuffix(lower, ".pcm"):
		return ContainerRaw
	}
	return ContainerAuto
}

// OutputContainer is the container written to path: WAV unless the
// extension says otherwise, ContainerAuto for an unknown extension.
func OutputContainer(path string) Container {
	c := DetectContainer(path)
	if c == ContainerAuto && filepath.Ext(path) == "" {
		return ContainerWAV
	}
	return c
}

// SampleFormat is the sample encoding of a written WAV file.
type SampleFormat string

const (
	SampleFormatFloat32 = SampleFormat("float32")
	SampleFormatS16     = SampleFormat("s16")
	SampleFormatS24     = SampleFormat("s24")
)

func ParseSampleFormat(s string) (SampleFormat, error) {
	switch f := SampleFormat(strings.ToLower(s)); f {
	case SampleFormatFloat32, SampleFormatS16, SampleFormatS24:
		return f, nil
	case "":
		return SampleFormatFloat32, nil
	}
	return "", fmt.Errorf("%w: sample format '%s'", ErrUnsupported, s)
}

// StdStream is the path that refers to stdin or stdout.
const StdStream = "-"

func checkShape(dst [][]float32, channels uint32) (int, error) {
	if len(dst) != int(channels) {
		return 0, fmt.Errorf("expected %d channel buffers, received %d", channels, len(dst))
	}
	samples := len(dst[0])
	for ch, buf := range dst {
		if len(buf) != samples {
			return 0, fmt.Errorf("channel %d has %d samples, but channel 0 has %d", ch, len(buf), samples)
		}
	}
	return samples, nil
}
