package main

import (
	"context"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiofx/pkg/audio"
	_ "github.com/xaionaro-go/audiofx/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/audiofx/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/audiofx/pkg/audiofile"
	"github.com/xaionaro-go/audiofx/pkg/pipeline"
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	inputFormat := pflag.String("input-format", "auto", "input container: auto | wav | ogg | raw")
	rawPCMFormat := pflag.String("raw-pcm-format", "f32le", "sample format of raw input")
	rawChannels := pflag.Uint32("raw-channels", 2, "the amount of channels of raw input")
	rawSampleRate := pflag.Uint32("raw-sample-rate", 48000, "the sample rate of raw input")
	pflag.Parse()

	if pflag.NArg() != 1 {
		panic("expected exactly one positional argument: path to the audio file")
	}
	filePath := pflag.Arg(0)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	container, err := audiofile.ParseContainer(*inputFormat)
	assertNoError(err)
	pcmFormat, err := audio.ParsePCMFormat(*rawPCMFormat)
	assertNoError(err)

	logger.Infof(ctx, "starting...")
	err = pipeline.Play(ctx, filePath, audiofile.OpenOptions{
		Container:     container,
		RawFormat:     pcmFormat,
		RawChannels:   *rawChannels,
		RawSampleRate: *rawSampleRate,
	})
	assertNoError(err)
	logger.Infof(ctx, "finished")
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
