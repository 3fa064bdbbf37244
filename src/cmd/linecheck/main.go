// Package main is the entry point for the linecheck file validator
package main

import (
	"errors"
	"fmt"
	"linesort/src/cli"
	"linesort/src/models"
	"linesort/src/sysinfo"
	"linesort/src/validate"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run checks the file named in args and returns the process exit code
func run(args []string) int {
	flags := pflag.NewFlagSet("linecheck", pflag.ContinueOnError)
	linesOnly := flags.Bool("lines-only", false, "check the line format without checking the order")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linecheck [flags] <file>\n\nChecks that every line is \"{number}. {text}\" and that lines are sorted.\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}
	path := flags.Arg(0)

	logger, err := cli.NewLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := cli.SignalContext()
	defer stop()

	sys := sysinfo.NewOS()
	cli.LogSystem(logger, sys, path)

	v := validate.New(&validate.Options{SysInfo: sys, Logger: logger, LinesOnly: *linesOnly})
	result, err := v.Validate(ctx, path)
	switch {
	case errors.Is(err, validate.ErrNotSorted):
		logger.Error("file is not sorted", zap.String("path", path), zap.Error(err))
		return 3
	case errors.Is(err, models.ErrMalformedLine):
		logger.Error("file has malformed lines", zap.String("path", path), zap.Error(err))
		return 4
	case err != nil:
		logger.Error("validation failed", zap.String("path", path), zap.Error(err))
		return 1
	}

	fmt.Printf("%d lines valid\n", result.Lines)
	return 0
}
