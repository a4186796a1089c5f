package main

import (
	"context"
	"fmt"
	"os"

	"github.com/woozymasta/fgdbbench/internal/driver"
	"github.com/woozymasta/fgdbbench/internal/frame"
	"github.com/woozymasta/fgdbbench/internal/logger"
	"github.com/woozymasta/fgdbbench/internal/timing"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input  string `short:"i" long:"in"     description:"Input file path" required:"true"`
	Output string `short:"o" long:"out"    description:"Output file path" required:"true"`
	Driver string `short:"d" long:"driver" description:"Output driver name, chosen by output extension if empty"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	n, err := convert(context.Background(), driver.Default(), timing.New(nil), opts)
	if err != nil {
		log.Fatal().Err(err).Str("in", opts.Input).Str("out", opts.Output).Msg("Conversion failed")
	}

	log.Info().
		Int("features", n).
		Str("file", opts.Output).
		Msg("Successfully converted")
}

// convert reads opts.Input and writes opts.Output, timing both stages.
// It returns the number of converted features.
func convert(ctx context.Context, reg *driver.Registry, timer *timing.Timer, opts Options) (int, error) {
	src, ok := reg.ForPath(opts.Input)
	if !ok || !src.Capabilities().Has(driver.Read) {
		return 0, fmt.Errorf("no driver reads %s, supported: %v", opts.Input, reg.Supported())
	}

	dst, ok := reg.ForPath(opts.Output)
	if opts.Driver != "" {
		dst, ok = reg.Get(opts.Driver)
	}
	if !ok || !dst.Capabilities().Has(driver.Write) {
		return 0, fmt.Errorf("no driver writes %s, supported: %v", opts.Output, reg.Supported())
	}

	log.Debug().Str("from", src.Name()).Str("to", dst.Name()).Msg("Drivers selected")

	var data *frame.Frame
	err := timer.Track(ctx, "Read "+opts.Input, func(ctx context.Context) error {
		var err error
		data, err = src.Read(ctx, opts.Input)
		return err
	})
	if err != nil {
		return 0, err
	}

	err = timer.Track(ctx, "Write "+opts.Output, func(ctx context.Context) error {
		return dst.Write(ctx, opts.Output, data)
	})
	if err != nil {
		return 0, err
	}

	return data.Len(), nil
}
