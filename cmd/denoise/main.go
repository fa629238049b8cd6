package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	_ "github.com/xaionaro-go/audiofx/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/audiofx/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/audiofx/pkg/config"
	"github.com/xaionaro-go/audiofx/pkg/effect"
	_ "github.com/xaionaro-go/audiofx/pkg/effect/implementations/chained"
	"github.com/xaionaro-go/audiofx/pkg/pipeline"
	"github.com/xaionaro-go/observability"
)

func main() {
	os.Exit(int(run()))
}

func run() pipeline.Status {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file; command line flags override its values")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	flags := config.AddFlags(pflag.CommandLine, config.Default())
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input> <output>\n\nknown effects: %s\n\n", os.Args[0], strings.Join(effectNames(), ", "))
		pflag.PrintDefaults()
	}
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.ReadFile(*configPath)
		if err != nil {
			logger.Errorf(ctx, "%v", err)
			return pipeline.StatusOf(err)
		}
	}
	flags.Apply(pflag.CommandLine, &cfg)
	switch pflag.NArg() {
	case 0:
	case 2:
		cfg.Input, cfg.Output = pflag.Arg(0), pflag.Arg(1)
	default:
		pflag.Usage()
		return pipeline.StatusEffectError
	}

	result, err := pipeline.Run(ctx, cfg)
	status := pipeline.StatusOf(err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", status, err)
		return status
	}
	logger.Infof(ctx, "done: %d frames, %d samples per channel written as %s", result.FramesProcessed, result.SamplesWritten, result.OutputFormat)
	return status
}

func effectNames() []string {
	var names []string
	for _, name := range effect.Names() {
		names = append(names, string(name))
	}
	return names
}
