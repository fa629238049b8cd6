package audiofile

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xaionaro-go/audiofx/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// NewWAVSource streams the PCM chunk of a WAV file.
func NewWAVSource(rs io.ReadSeeker, closer io.Closer) (Source, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrUnsupported)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("unable to locate the PCM data: %w", err)
	}

	format, err := wavPCMFormat(dec.WavAudioFormat, dec.BitDepth)
	if err != nil {
		return nil, err
	}
	frameBytes := int64(format.Size()) * int64(dec.NumChans)
	if frameBytes == 0 {
		return nil, fmt.Errorf("%w: WAV file declares zero channels", ErrUnsupported)
	}

	return newPCMSource(
		io.LimitReader(dec.PCMChunk, int64(dec.PCMSize)),
		closer,
		format,
		uint32(dec.NumChans),
		dec.SampleRate,
		int64(dec.PCMSize)/frameBytes,
	)
}

func wavPCMFormat(wavFormat, bitDepth uint16) (audio.PCMFormat, error) {
	switch wavFormat {
	case wavFormatIEEEFloat:
		switch bitDepth {
		case 32:
			return audio.PCMFormatFloat32LE, nil
		case 64:
			return audio.PCMFormatFloat64LE, nil
		}
	case wavFormatPCM, wavFormatExtensible:
		switch bitDepth {
		case 8:
			return audio.PCMFormatU8, nil
		case 16:
			return audio.PCMFormatS16LE, nil
		case 24:
			return audio.PCMFormatS24LE, nil
		case 32:
			return audio.PCMFormatS32LE, nil
		}
	}
	return audio.PCMFormatUndefined, fmt.Errorf("%w: WAV format %d with %d bits per sample", ErrUnsupported, wavFormat, bitDepth)
}

// WAVSink encodes planar frames into a WAV file.
type WAVSink struct {
	encoder  *wav.Encoder
	format   SampleFormat
	channels int
	buf      *goaudio.IntBuffer
	wrote    bool
}

var _ Sink = (*WAVSink)(nil)

func NewWAVSink(
	w io.WriteSeeker,
	sampleRate uint32,
	channels uint32,
	format SampleFormat,
) (*WAVSink, error) {
	var bitDepth, wavFormat int
	switch format {
	case SampleFormatFloat32:
		bitDepth, wavFormat = 32, wavFormatIEEEFloat
	case SampleFormatS16:
		bitDepth, wavFormat = 16, wavFormatPCM
	case SampleFormatS24:
		bitDepth, wavFormat = 24, wavFormatPCM
	default:
		return nil, fmt.Errorf("%w: sample format '%s'", ErrUnsupported, format)
	}
	return &WAVSink{
		encoder:  wav.NewEncoder(w, int(sampleRate), bitDepth, int(channels), wavFormat),
		format:   format,
		channels: int(channels),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: int(channels),
				SampleRate:  int(sampleRate),
			},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

func (s *WAVSink) Write(src [][]float32) error {
	samples, err := checkShape(src, uint32(s.channels))
	if err != nil {
		return err
	}
	if samples == 0 {
		return nil
	}
	total := samples * s.channels
	if cap(s.buf.Data) < total {
		s.buf.Data = make([]int, total)
	}
	s.buf.Data = s.buf.Data[:total]

	for idx := 0; idx < samples; idx++ {
		for ch := 0; ch < s.channels; ch++ {
			s.buf.Data[idx*s.channels+ch] = s.encodeSample(src[ch][idx])
		}
	}
	if err := s.encoder.Write(s.buf); err != nil {
		return fmt.Errorf("unable to write WAV samples: %w", err)
	}
	s.wrote = true
	return nil
}

func (s *WAVSink) encodeSample(v float32) int {
	switch s.format {
	case SampleFormatFloat32:
		return int(math.Float32bits(v))
	case SampleFormatS16:
		return int(math.Round(float64(clip(v)) * math.MaxInt16))
	default:
		return int(math.Round(float64(clip(v)) * 8388607))
	}
}

func clip(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Close finalizes the WAV header; it does not close the underlying writer.
func (s *WAVSink) Close() error {
	if !s.wrote {
		// the header is emitted on the first write
		s.buf.Data = s.buf.Data[:0]
		if err := s.encoder.Write(s.buf); err != nil {
			return fmt.Errorf("unable to write the WAV header: %w", err)
		}
		s.wrote = true
	}
	if err := s.encoder.Close(); err != nil {
		return fmt.Errorf("unable to finalize the WAV file: %w", err)
	}
	return nil
}

// OpenWAV opens a WAV file by path.
func OpenWAV(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open '%s': %w", ErrNotFound, path, err)
	}
	src, err := NewWAVSource(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}
