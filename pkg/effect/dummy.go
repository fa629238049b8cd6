package effect

import (
	"context"
)

func init() {
	Register(NamePassthrough, func(context.Context) (Effect, error) {
		return NewDummy(), nil
	})
}

// Dummy copies its input to its output in 10 ms frames.
type Dummy struct {
	Base
}

var _ Effect = (*Dummy)(nil)

func NewDummy() *Dummy {
	return &Dummy{}
}

func (d *Dummy) Load(ctx context.Context) error {
	settings, err := d.BeginLoad()
	if err != nil {
		return err
	}
	frameSize := settings.InputSampleRate / 100
	if frameSize == 0 {
		frameSize = 1
	}
	d.FinishLoad(Shape{
		OutputSampleRate: settings.InputSampleRate,
		InputFrameSize:   frameSize,
		OutputFrameSize:  frameSize,
	})
	return nil
}

func (d *Dummy) Run(ctx context.Context, input, output [][]float32) error {
	if _, err := d.CheckRun(input, output); err != nil {
		return err
	}
	for ch := range input {
		copy(output[ch], input[ch])
	}
	return nil
}

func (d *Dummy) Close() error {
	return d.MarkClosed()
}
