package audiofile

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiofx/pkg/audio"
)

func sine(samples int, freq, rate float64, amplitude float32) []float32 {
	out := make([]float32, samples)
	for idx := range out {
		out[idx] = amplitude * float32(math.Sin(2*math.Pi*freq*float64(idx)/rate))
	}
	return out
}

func readAll(t *testing.T, src Source, blockSize int) [][]float32 {
	t.Helper()
	block := make([][]float32, src.Channels())
	for ch := range block {
		block[ch] = make([]float32, blockSize)
	}
	result := make([][]float32, src.Channels())
	for {
		n, err := src.Read(block)
		if err == io.EOF {
			require.Zero(t, n)
			return result
		}
		require.NoError(t, err)
		for ch := range block {
			result[ch] = append(result[ch], block[ch][:n]...)
		}
	}
}

func writeWAV(t *testing.T, path string, rate uint32, format SampleFormat, data [][]float32) {
	t.Helper()
	f, err := CreateAtomic(path)
	require.NoError(t, err)
	sink, err := NewWAVSink(f, rate, uint32(len(data)), format)
	require.NoError(t, err)
	require.NoError(t, sink.Write(data))
	require.NoError(t, sink.Close())
	require.NoError(t, f.Commit())
}

func TestWAVRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		format    SampleFormat
		tolerance float64
	}{
		{SampleFormatFloat32, 0},
		{SampleFormatS16, 1.0 / 32767},
		{SampleFormatS24, 1.0 / 8388607},
	} {
		t.Run(string(tc.format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.wav")
			data := [][]float32{
				sine(1000, 440, 16000, 0.5),
				sine(1000, 1000, 16000, 0.25),
			}
			writeWAV(t, path, 16000, tc.format, data)

			src, err := OpenWAV(path)
			require.NoError(t, err)
			defer src.Close()
			require.Equal(t, uint32(16000), src.SampleRate())
			require.Equal(t, uint32(2), src.Channels())
			require.Equal(t, int64(1000), src.Length())

			got := readAll(t, src, 333)
			require.Len(t, got, 2)
			for ch := range data {
				require.Len(t, got[ch], 1000)
				for idx := range data[ch] {
					require.InDelta(t, data[ch][idx], got[ch][idx], tc.tolerance+1e-7, "ch:%d idx:%d", ch, idx)
				}
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.wav"), OpenOptions{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Open(StdStream, OpenOptions{Container: ContainerWAV})
	require.ErrorIs(t, err, ErrUnsupported)

	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a RIFF file"), 0640))
	_, err = Open(garbage, OpenOptions{})
	require.ErrorIs(t, err, ErrUnsupported)

	path := filepath.Join(dir, "in.wav")
	writeWAV(t, path, 16000, SampleFormatS16, [][]float32{sine(160, 440, 16000, 0.5)})
	src, err := Open(path, OpenOptions{Container: ContainerAuto})
	require.NoError(t, err)
	require.Equal(t, uint32(1), src.Channels())
	require.NoError(t, src.Close())
}

func TestOpenUnknownExtension(t *testing.T) {
	dir := t.TempDir()

	flac := filepath.Join(dir, "in.flac")
	require.NoError(t, os.WriteFile(flac, []byte("fLaC\x00\x00\x00\x22 some stream info"), 0640))
	_, err := Open(flac, OpenOptions{})
	require.ErrorIs(t, err, ErrUnsupported)

	short := filepath.Join(dir, "tiny.bin")
	require.NoError(t, os.WriteFile(short, []byte("RI"), 0640))
	_, err = Open(short, OpenOptions{})
	require.ErrorIs(t, err, ErrUnsupported)

	// a WAV behind an unknown extension is recognized by its header
	wavPath := filepath.Join(dir, "recording.take1")
	writeWAV(t, wavPath, 16000, SampleFormatS16, [][]float32{sine(320, 440, 16000, 0.5)})
	src, err := Open(wavPath, OpenOptions{})
	require.NoError(t, err)
	require.Equal(t, uint32(16000), src.SampleRate())
	defer src.Close()
	data := readAll(t, src, 100)
	require.Len(t, data[0], 320)
}

func TestOggInvalid(t *testing.T) {
	_, err := NewOggSource(bytes.NewReader([]byte("OggS but not really")), nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestDetectContainer(t *testing.T) {
	for path, expected := range map[string]Container{
		"a.wav":      ContainerWAV,
		"a.WAVE":     ContainerWAV,
		"b.ogg":      ContainerOgg,
		"c.pcm":      ContainerRaw,
		"d.raw":      ContainerRaw,
		StdStream:    ContainerRaw,
		"no-suffix":  ContainerAuto,
		"dir.ogg/on": ContainerAuto,
		"e.flac":     ContainerAuto,
		"f.mp3":      ContainerAuto,
	} {
		assert.Equal(t, expected, DetectContainer(path), path)
	}
	for path, expected := range map[string]Container{
		"out.wav":  ContainerWAV,
		"out.pcm":  ContainerRaw,
		StdStream:  ContainerRaw,
		"out":      ContainerWAV,
		"out.flac": ContainerAuto,
	} {
		assert.Equal(t, expected, OutputContainer(path), path)
	}

	c, err := ParseContainer("OGG")
	require.NoError(t, err)
	require.Equal(t, ContainerOgg, c)
	_, err = ParseContainer("mp3")
	require.ErrorIs(t, err, ErrUnsupported)

	f, err := ParseSampleFormat("")
	require.NoError(t, err)
	require.Equal(t, SampleFormatFloat32, f)
	_, err = ParseSampleFormat("s8")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestRawRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewRawSink(&buf, audio.PCMFormatS16LE, 2)
	require.NoError(t, err)
	data := [][]float32{
		sine(100, 440, 16000, 0.5),
		sine(100, 880, 16000, 0.5),
	}
	require.NoError(t, sink.Write(data))
	require.NoError(t, sink.Close())
	require.Equal(t, 100*2*2, buf.Len())

	// a truncated trailing frame is ignored
	buf.WriteByte(0x01)

	src, err := NewRawSource(&buf, nil, audio.PCMFormatS16LE, 2, 16000, -1)
	require.NoError(t, err)
	got := readAll(t, src, 64)
	for ch := range data {
		require.Len(t, got[ch], 100)
		for idx := range data[ch] {
			require.InDelta(t, data[ch][idx], got[ch][idx], 1.0/16384)
		}
	}

	_, err = NewRawSource(&buf, nil, audio.PCMFormatS16LE, 0, 16000, -1)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestAtomicFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	f, err := CreateAtomic(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, f.Abort())
	require.NoError(t, f.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, spew.Sdump(entries))

	f, err = CreateAtomic(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("complete"))
	require.NoError(t, err)
	require.NoError(t, f.Commit())
	require.Error(t, f.Commit())
	require.NoError(t, f.Abort())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "complete", string(b))

	_, err = CreateAtomic(filepath.Join(dir, "no", "such", "dir.wav"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadAll(t *testing.T) {
	newSource := func() Source {
		var buf bytes.Buffer
		sink, err := NewRawSink(&buf, audio.PCMFormatFloat32LE, 1)
		require.NoError(t, err)
		require.NoError(t, sink.Write([][]float32{sine(5000, 100, 16000, 0.5)}))
		src, err := NewRawSource(&buf, nil, audio.PCMFormatFloat32LE, 1, 16000, 5000)
		require.NoError(t, err)
		return src
	}

	src, err := ReadAll(newSource(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(5000), src.Length())
	got := readAll(t, src, 4096)
	require.Len(t, got[0], 5000)

	_, err = ReadAll(newSource(), 4000)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestResampledSource(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewRawSink(&buf, audio.PCMFormatFloat32LE, 1)
	require.NoError(t, err)
	require.NoError(t, sink.Write([][]float32{sine(1600, 440, 16000, 0.5)}))
	raw, err := NewRawSource(&buf, nil, audio.PCMFormatFloat32LE, 1, 16000, 1600)
	require.NoError(t, err)

	same, err := NewResampledSource(raw, 16000)
	require.NoError(t, err)
	require.Equal(t, raw, same)

	src, err := NewResampledSource(raw, 48000)
	require.NoError(t, err)
	require.Equal(t, uint32(48000), src.SampleRate())
	require.Equal(t, int64(4800), src.Length())

	got := readAll(t, src, 1000)
	require.LessOrEqual(t, len(got[0]), 4800)
	require.Greater(t, len(got[0]), 4000)
	require.NoError(t, src.Close())
}

func TestResampledSourceKeepsChannelsApart(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewRawSink(&buf, audio.PCMFormatFloat32LE, 2)
	require.NoError(t, err)
	require.NoError(t, sink.Write([][]float32{sine(3200, 440, 16000, 0.5), make([]float32, 3200)}))
	raw, err := NewRawSource(&buf, nil, audio.PCMFormatFloat32LE, 2, 16000, 3200)
	require.NoError(t, err)

	src, err := NewResampledSource(raw, 48000)
	require.NoError(t, err)
	require.Equal(t, uint32(2), src.Channels())

	got := readAll(t, src, 777)
	require.Len(t, got, 2)
	require.Equal(t, len(got[0]), len(got[1]))
	require.Greater(t, len(got[0]), 8000)

	var left float64
	for idx, v := range got[1] {
		require.InDelta(t, 0, v, 1e-6, "sample %d", idx)
		left = max(left, math.Abs(float64(got[0][idx])))
	}
	require.Greater(t, left, 0.4)
}

func TestInterleavedReader(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewRawSink(&buf, audio.PCMFormatFloat32LE, 2)
	require.NoError(t, err)
	require.NoError(t, sink.Write([][]float32{{1, 2, 3}, {-1, -2, -3}}))
	src, err := NewRawSource(&buf, nil, audio.PCMFormatFloat32LE, 2, 16000, 3)
	require.NoError(t, err)

	r := NewInterleavedReader(src)
	p := make([]float32, 5)
	n, err := r.Read(p)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []float32{1, -1, 2, -2}, p[:n])

	n, err = r.Read(p)
	require.NoError(t, err)
	require.Equal(t, []float32{3, -3}, p[:n])

	_, err = r.Read(p)
	require.ErrorIs(t, err, io.EOF)

	_, err = r.Read(p[:1])
	require.ErrorIs(t, err, io.ErrShortBuffer)
}
