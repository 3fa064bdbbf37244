// Package main is the entry point for the linesort external sorting tool
package main

import (
	"errors"
	"fmt"
	"linesort/src/cli"
	"linesort/src/progress"
	"linesort/src/sorter"
	"linesort/src/sysinfo"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run sorts the file named in args and returns the process exit code
func run(args []string) int {
	flags := pflag.NewFlagSet("linesort", pflag.ContinueOnError)
	memory := flags.Uint64P("memory", "m", 0, "cap on the memory budget in bytes (0 uses available memory)")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linesort [flags] <file>\n\nSorts lines of the form \"{number}. {text}\" by text, then number.\n\n")
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
	input := flags.Arg(0)

	logger, err := cli.NewLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := cli.SignalContext()
	defer stop()

	sys := sysinfo.Limited{Provider: sysinfo.NewOS(), MaxMemory: *memory}
	cli.LogSystem(logger, sys, input)

	s := sorter.New(&sorter.Options{
		SysInfo:  sys,
		Logger:   logger,
		Progress: progress.NewLogger(logger, "sorting", 0.05),
	})

	output, err := s.Sort(ctx, input)
	if err != nil {
		logger.Error("sort failed", zap.String("input", input), zap.Stringer("state", s.State()), zap.Error(err))
		return 1
	}
	fmt.Println(output)
	return 0
}
