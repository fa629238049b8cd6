package effect

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
)

// NewBuffers allocates planar buffers of the given shape.
func NewBuffers(channels, samples int) [][]float32 {
	buffers := make([][]float32, channels)
	for ch := range buffers {
		buffers[ch] = make([]float32, samples)
	}
	return buffers
}

func CheckBuffers(buffers [][]float32, channels, samples uint32) error {
	if len(buffers) != int(channels) {
		return fmt.Errorf("%w: expected %d channels, received %d", ErrInvalidBuffer, channels, len(buffers))
	}
	for ch, buf := range buffers {
		if len(buf) != int(samples) {
			return fmt.Errorf("%w: channel %d: expected %d samples, received %d", ErrInvalidBuffer, ch, samples, len(buf))
		}
	}
	return nil
}

// ForEachChannel calls fn for every channel; with more than one channel the
// calls run concurrently.
func ForEachChannel(
	ctx context.Context,
	channels int,
	fn func(ctx context.Context, ch int) error,
) error {
	if channels == 1 {
		return fn(ctx, 0)
	}

	var (
		wg     sync.WaitGroup
		locker sync.Mutex
		mErr   *multierror.Error
	)
	for ch := 0; ch < channels; ch++ {
		wg.Add(1)
		observability.Go(ctx, func() {
			defer wg.Done()
			err := fn(ctx, ch)
			if err == nil {
				return
			}
			locker.Lock()
			defer locker.Unlock()
			mErr = multierror.Append(mErr, fmt.Errorf("channel %d: %w", ch, err))
		})
	}
	wg.Wait()
	return mErr.ErrorOrNil()
}
