// Package effectstream applies an effect to a stream of interleaved
// float32le PCM.
package effectstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/audiofx/pkg/audio"
	"github.com/xaionaro-go/audiofx/pkg/audio/planar"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	"github.com/xaionaro-go/observability"
)

const (
	sampleSize = 4 // float32

	readChunkSize = 65536
)

// ErrEffect wraps the failures of the effect itself.
var ErrEffect = errors.New("the effect failed")

type Options struct {
	CompensateLatency bool
}

// EffectStream is an io.Reader of the processed stream. The effect must be
// loaded; it is owned by the caller and is not closed by the stream.
type EffectStream struct {
	effect.Effect
	info effect.Info
	opts Options

	inFrameBytes  int
	outFrameBytes int
	readChunk     int

	inputBufferLocker sync.Mutex
	inputBuffer       *circular.Buffer
	inputEOF          bool

	outputBufferLocker sync.Mutex
	outputBuffer       *circular.Buffer
	outputEOF          bool
	resultError        error

	readCtx        context.Context
	cancelFunc     context.CancelFunc
	effectLoopDone chan struct{}

	readProgressedCh         chan struct{}
	effectInputProgressedCh  chan struct{}
	effectOutputProgressedCh chan struct{}
	outputProgressedCh       chan struct{}
}

var _ io.Reader = (*EffectStream)(nil)

func New(
	ctx context.Context,
	input io.Reader,
	eff effect.Effect,
	inputBufferSize uint,
	outputBufferSize uint,
	opts Options,
) (*EffectStream, error) {
	info, err := effect.GetInfo(eff)
	if err != nil {
		return nil, fmt.Errorf("unable to get the shape of the effect: %w", err)
	}

	s := &EffectStream{
		Effect:        eff,
		info:          info,
		opts:          opts,
		inFrameBytes:  int(info.InputFrameSize) * int(info.InputChannels) * sampleSize,
		outFrameBytes: int(info.OutputFrameSize) * int(info.OutputChannels) * sampleSize,

		readProgressedCh:         make(chan struct{}),
		effectInputProgressedCh:  make(chan struct{}),
		effectOutputProgressedCh: make(chan struct{}),
		outputProgressedCh:       make(chan struct{}),
		effectLoopDone:           make(chan struct{}),
	}
	if s.inFrameBytes == 0 || s.outFrameBytes == 0 {
		return nil, fmt.Errorf("the effect has an empty frame: %#+v", info)
	}
	if int(inputBufferSize) < s.inFrameBytes {
		return nil, fmt.Errorf("the input buffer (%d bytes) cannot fit a frame of %d bytes", inputBufferSize, s.inFrameBytes)
	}
	if int(outputBufferSize) < s.outFrameBytes {
		return nil, fmt.Errorf("the output buffer (%d bytes) cannot fit a frame of %d bytes", outputBufferSize, s.outFrameBytes)
	}
	inSampleFrame := int(info.InputChannels) * sampleSize
	s.readChunk = min(readChunkSize, int(inputBufferSize))
	s.readChunk -= s.readChunk % inSampleFrame
	s.inputBuffer = circular.NewBuffer(int(inputBufferSize))
	s.outputBuffer = circular.NewBuffer(int(outputBufferSize))

	ctx, cancelFunc := context.WithCancel(ctx)
	s.readCtx, s.cancelFunc = ctx, cancelFunc
	observability.Go(ctx, func() {
		err := s.readerLoop(ctx, input)
		if err != nil {
			s.fail(fmt.Errorf("got an error from the reader loop: %w", err))
		}
	})
	observability.Go(ctx, func() {
		defer close(s.effectLoopDone)
		err := s.effectLoop(ctx)
		if err != nil {
			s.fail(fmt.Errorf("got an error from the effect loop: %w", err))
		}
	})
	return s, nil
}

// fail records the first error, stops the loops and wakes up Read.
func (s *EffectStream) fail(err error) {
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	if s.resultError == nil {
		s.resultError = err
	}
	s.cancelFunc()
	s.signalEffectOutputLocked()
}

func (s *EffectStream) signalEffectOutputLocked() {
	var oldCh chan struct{}
	oldCh, s.effectOutputProgressedCh = s.effectOutputProgressedCh, make(chan struct{})
	close(oldCh)
}

func (s *EffectStream) readerLoop(
	ctx context.Context,
	input io.Reader,
) (_err error) {
	logger.Tracef(ctx, "readerLoop")
	defer func() { logger.Tracef(ctx, "/readerLoop %v", _err) }()

	readBuf := make([]byte, s.readChunk)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logger.Tracef(ctx, "readerLoop: Read()")
		n, err := input.Read(readBuf)
		logger.Tracef(ctx, "/readerLoop: Read(): %v %v", n, err)
		if n < 0 {
			return fmt.Errorf("received invalid value of received bytes: %d", n)
		}
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return fmt.Errorf("unable to read the input: %w", err)
		}

		if err := func() error {
			s.inputBufferLocker.Lock()
			defer s.inputBufferLocker.Unlock()
			// a partial write is followed by ErrNoSpace; the rest is retried
			// once the effect loop consumes something
			for off := 0; off < n; {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				w, err := s.inputBuffer.Write(readBuf[off:n])
				off += w
				if w > 0 && off < n {
					s.signalReadLocked()
				}
				if err != nil {
					if errors.Is(err, circular.ErrNoSpace) {
						s.waitForEffectInputProgressed(ctx)
						continue
					}
					return fmt.Errorf("unable to write to the circular buffer: %w", err)
				}
				if off != n {
					return fmt.Errorf("wrote != read: %d != %d", off, n)
				}
			}
			s.inputEOF = eof
			logger.Tracef(ctx, "closing readProgressedCh")
			s.signalReadLocked()
			return nil
		}(); err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

func (s *EffectStream) signalReadLocked() {
	var oldCh chan struct{}
	oldCh, s.readProgressedCh = s.readProgressedCh, make(chan struct{})
	close(oldCh)
}

func (s *EffectStream) waitForEffectInputProgressed(ctx context.Context) {
	logger.Tracef(ctx, "waitForEffectInputProgressed")
	defer logger.Tracef(ctx, "/waitForEffectInputProgressed")

	ch := s.effectInputProgressedCh
	s.inputBufferLocker.Unlock()
	defer s.inputBufferLocker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
		logger.Tracef(ctx, "waitForEffectInputProgressed: received an event")
	}
}

// receiveFrame fills buf with up to one input frame; it returns the amount
// of bytes received and whether the input has ended.
func (s *EffectStream) receiveFrame(ctx context.Context, buf []byte) (int, bool, error) {
	receivedCount := 0
	for {
		var (
			waitCh chan struct{}
			eof    bool
		)
		if err := func() error {
			s.inputBufferLocker.Lock()
			defer s.inputBufferLocker.Unlock()
			waitCh = s.readProgressedCh
			for receivedCount < len(buf) {
				n, err := s.inputBuffer.Read(buf[receivedCount:])
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("unable to read from the circular buffer: %w", err)
				}
				if n < 0 {
					return fmt.Errorf("received a negative count: %d", n)
				}
				if n == 0 {
					eof = s.inputEOF
					break
				}
				receivedCount += n
			}
			logger.Tracef(ctx, "closing effectInputProgressedCh")
			var oldCh chan struct{}
			oldCh, s.effectInputProgressedCh = s.effectInputProgressedCh, make(chan struct{})
			close(oldCh)
			return nil
		}(); err != nil {
			return 0, false, err
		}
		if receivedCount >= len(buf) {
			return receivedCount, false, nil
		}
		if eof {
			return receivedCount, true, nil
		}
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-waitCh:
			logger.Tracef(ctx, "effectLoop: received a read event")
		}
	}
}

func (s *EffectStream) effectLoop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "effectLoop")
	defer func() { logger.Tracef(ctx, "/effectLoop: %v", _err) }()

	logger.Debugf(ctx, "frame: %d bytes in, %d bytes out", s.inFrameBytes, s.outFrameBytes)

	var (
		inputBuf  = make([]byte, s.inFrameBytes)
		outputBuf = make([]byte, s.outFrameBytes)
		inPlanar  = effect.NewBuffers(int(s.info.InputChannels), int(s.info.InputFrameSize))
		outPlanar = effect.NewBuffers(int(s.info.OutputChannels), int(s.info.OutputFrameSize))
		scratch   []byte
		window    = effect.NewOutputWindow(s.info, s.opts.CompensateLatency)
		inSample  = int(s.info.InputChannels) * sampleSize
		outSample = int(s.info.OutputChannels) * sampleSize
	)
	for !window.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, eof, err := s.receiveFrame(ctx, inputBuf)
		if err != nil {
			return err
		}
		n -= n % inSample
		clear(inputBuf[n:])
		window.AddInput(n / inSample)
		if eof {
			window.Finish()
			if n == 0 && window.Done() {
				break
			}
		}

		if _, err := planar.Decode(inPlanar, audio.PCMFormatFloat32LE, inputBuf, &scratch); err != nil {
			return fmt.Errorf("unable to decode the input frame: %w", err)
		}
		logger.Tracef(ctx, "s.Effect.Run")
		err = s.Effect.Run(ctx, inPlanar, outPlanar)
		logger.Tracef(ctx, "/s.Effect.Run: %v", err)
		if err != nil {
			return fmt.Errorf("%w: unable to apply the effect: %w", ErrEffect, err)
		}
		if err := planar.Encode(outputBuf, audio.PCMFormatFloat32LE, outPlanar, int(s.info.OutputFrameSize), &scratch); err != nil {
			return fmt.Errorf("unable to encode the output frame: %w", err)
		}

		from, to := window.Keep(int(s.info.OutputFrameSize))
		if err := s.writeOutput(ctx, outputBuf[from*outSample:to*outSample]); err != nil {
			return err
		}
	}

	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	s.outputEOF = true
	s.signalEffectOutputLocked()
	return nil
}

func (s *EffectStream) writeOutput(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	logger.Tracef(ctx, "s.outputBufferLocker.Lock()")
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	logger.Tracef(ctx, "/s.outputBufferLocker.Lock()")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w, err := s.outputBuffer.Write(b)
		b = b[w:]
		if w > 0 {
			logger.Tracef(ctx, "closing effectOutputProgressedCh")
			s.signalEffectOutputLocked()
		}
		if err != nil {
			if errors.Is(err, circular.ErrNoSpace) {
				s.waitForOutput(ctx)
				continue
			}
			return fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
		if len(b) != 0 {
			return fmt.Errorf("%d processed bytes were not written", len(b))
		}
		return nil
	}
}

func (s *EffectStream) waitForOutput(ctx context.Context) {
	logger.Tracef(ctx, "waitForOutput")
	defer logger.Tracef(ctx, "/waitForOutput")

	ch := s.outputProgressedCh
	s.outputBufferLocker.Unlock()
	defer s.outputBufferLocker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
		logger.Tracef(ctx, "waitForOutput: received an event")
	}
}

// Read returns processed bytes; io.EOF follows the last frame.
func (s *EffectStream) Read(pcm []byte) (_ret int, _err error) {
	logger.Tracef(s.readCtx, "Read, len:%d", len(pcm))
	defer func() { logger.Tracef(s.readCtx, "/Read, len:%d: %d, %v", len(pcm), _ret, _err) }()

	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()

	for {
		if s.resultError != nil {
			return 0, s.resultError
		}
		logger.Tracef(s.readCtx, "Read: s.outputBuffer.Read()")
		n, err := s.outputBuffer.Read(pcm)
		logger.Tracef(s.readCtx, "/Read: s.outputBuffer.Read(): %v %v", n, err)
		if n > 0 {
			var oldCh chan struct{}
			oldCh, s.outputProgressedCh = s.outputProgressedCh, make(chan struct{})
			close(oldCh)
		}
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		if s.outputEOF {
			return 0, io.EOF
		}
		s.waitForEffectOutputProgressed(s.readCtx)
	}
}

func (s *EffectStream) waitForEffectOutputProgressed(ctx context.Context) {
	logger.Tracef(ctx, "waitForEffectOutputProgressed")
	defer logger.Tracef(ctx, "/waitForEffectOutputProgressed")

	ch := s.effectOutputProgressedCh
	s.outputBufferLocker.Unlock()
	defer s.outputBufferLocker.Lock()
	<-ch
}

// Close stops the loops and waits until the effect is no longer in use;
// the effect stays open.
func (s *EffectStream) Close() error {
	s.cancelFunc()
	<-s.effectLoopDone
	return nil
}
