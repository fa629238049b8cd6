package audiofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xaionaro-go/audiofx/pkg/audio"
)

// OpenOptions describes how to interpret an input file.
type OpenOptions struct {
	Container Container

	// Raw* describe headerless input.
	RawFormat     audio.PCMFormat
	RawChannels   uint32
	RawSampleRate uint32
}

// Open opens an audio file for reading. Failures to open the file match ErrNotFound.
func Open(path string, opts OpenOptions) (Source, error) {
	container := opts.Container
	if container == "" || container == ContainerAuto {
		container = DetectContainer(path)
	}

	if path == StdStream {
		if container != ContainerRaw {
			return nil, fmt.Errorf("%w: stdin supports raw PCM only, not %s", ErrUnsupported, container)
		}
		return NewRawSource(os.Stdin, nil, opts.RawFormat, opts.RawChannels, opts.RawSampleRate, -1)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open '%s': %w", ErrNotFound, path, err)
	}
	if container == ContainerAuto {
		container, err = sniffContainer(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("unable to open '%s': %w", path, err)
		}
	}
	src, err := openFile(f, container, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to open '%s' as %s: %w", path, container, err)
	}
	return src, nil
}

// sniffContainer recognizes a container by its magic bytes and rewinds rs.
func sniffContainer(rs io.ReadSeeker) (Container, error) {
	var header [12]byte
	n, err := io.ReadFull(rs, header[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("unable to read the header: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("unable to rewind: %w", err)
	}
	switch {
	case n >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return ContainerWAV, nil
	case n >= 4 && bytes.Equal(header[0:4], []byte("OggS")):
		return ContainerOgg, nil
	}
	return "", fmt.Errorf("%w: unrecognized container (header %q); set the input format explicitly", ErrUnsupported, header[:n])
}

func openFile(f *os.File, container Container, opts OpenOptions) (Source, error) {
	switch container {
	case ContainerWAV:
		return NewWAVSource(f, f)
	case ContainerOgg:
		return NewOggSource(f, f)
	case ContainerRaw:
		length := int64(-1)
		if stat, err := f.Stat(); err == nil && stat.Mode().IsRegular() && opts.RawFormat.Size() > 0 && opts.RawChannels > 0 {
			length = stat.Size() / int64(opts.RawFormat.Size()) / int64(opts.RawChannels)
		}
		return NewRawSource(f, f, opts.RawFormat, opts.RawChannels, opts.RawSampleRate, length)
	default:
		return nil, fmt.Errorf("%w: container '%s'", ErrUnsupported, container)
	}
}

// NewRawSource reads headerless interleaved PCM.
func NewRawSource(
	r io.Reader,
	closer io.Closer,
	format audio.PCMFormat,
	channels uint32,
	sampleRate uint32,
	length int64,
) (Source, error) {
	return newPCMSource(r, closer, format, channels, sampleRate, length)
}
