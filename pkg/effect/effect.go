package effect

import (
	"context"
	"io"
)

// Name identifies an effect implementation in the registry.
type Name string

const (
	NameDenoiser         = Name("denoiser")
	NameSuperRes         = Name("superres")
	NameDenoiserSuperRes = Name("denoiser_16k_superres_16k_to_48k")
	NamePassthrough      = Name("passthrough")
)

// Param identifies a parameter of an effect.
type Param string

const (
	ParamInputSampleRate          = Param("input_sample_rate")
	ParamOutputSampleRate         = Param("output_sample_rate")
	ParamIntensityRatio           = Param("intensity_ratio")
	ParamModelPath                = Param("model_path")
	ParamNumInputChannels         = Param("num_input_channels")
	ParamNumOutputChannels        = Param("num_output_channels")
	ParamNumInputSamplesPerFrame  = Param("num_input_samples_per_frame")
	ParamNumOutputSamplesPerFrame = Param("num_output_samples_per_frame")
	ParamLatencySamples           = Param("latency_samples")
)

const (
	MaxChannels       = 2
	DefaultSampleRate = 16000
)

// Effect is a frame-based audio processor.
//
// The lifecycle is: set parameters, Load, Run any number of times, Close.
// Buffers passed to Run are planar: one slice per channel.
type Effect interface {
	io.Closer

	SetU32(Param, uint32) error
	SetFloat(Param, float32) error
	SetFloatList(Param, []float32) error
	SetString(Param, string) error
	SetStringList(Param, []string) error

	GetU32(Param) (uint32, error)
	GetFloat(Param) (float32, error)

	Load(ctx context.Context) error
	Run(ctx context.Context, input, output [][]float32) error
}

// Info is the shape of a loaded effect.
type Info struct {
	InputSampleRate  uint32
	OutputSampleRate uint32
	InputChannels    uint32
	OutputChannels   uint32
	InputFrameSize   uint32
	OutputFrameSize  uint32
	LatencySamples   uint32
}

// GetInfo queries all the shape parameters of a loaded effect.
func GetInfo(e Effect) (Info, error) {
	var info Info
	for _, q := range []struct {
		param Param
		dst   *uint32
	}{
		{ParamInputSampleRate, &info.InputSampleRate},
		{ParamOutputSampleRate, &info.OutputSampleRate},
		{ParamNumInputChannels, &info.InputChannels},
		{ParamNumOutputChannels, &info.OutputChannels},
		{ParamNumInputSamplesPerFrame, &info.InputFrameSize},
		{ParamNumOutputSamplesPerFrame, &info.OutputFrameSize},
		{ParamLatencySamples, &info.LatencySamples},
	} {
		v, err := e.GetU32(q.param)
		if err != nil {
			return Info{}, err
		}
		*q.dst = v
	}
	return info, nil
}
