// Package main is the entry point for the linegen test file generator
package main

import (
	"errors"
	"fmt"
	"linesort/src/cli"
	"linesort/src/generate"
	"linesort/src/progress"
	"linesort/src/sysinfo"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run generates the file named in args and returns the process exit code
func run(args []string) int {
	flags := pflag.NewFlagSet("linegen", pflag.ContinueOnError)
	size := flags.Int64P("size", "s", 0, "exact size of the file in bytes")
	maxLineLength := flags.Int("max-line-length", 300, "longest generated line in bytes, terminator included")
	duplicatesPercent := flags.Int("duplicates-percent", 10, "chance in percent that a line repeats a duplicate pattern")
	duplicatePatterns := flags.Int("duplicate-patterns", 10, "number of lines eligible for repetition")
	seed := flags.Uint64("seed", 0, "seed for reproducible output (0 picks one)")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linegen --size <bytes> [flags] <file>\n\nWrites random \"{number}. {text}\" lines.\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if flags.NArg() != 1 || *size <= 0 {
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

	g := generate.New(&generate.Options{
		SysInfo:           sys,
		Logger:            logger,
		Progress:          progress.NewLogger(logger, "generating", 0.05),
		MaxLineLength:     *maxLineLength,
		DuplicatesPercent: *duplicatesPercent,
		DuplicatePatterns: *duplicatePatterns,
		Seed:              *seed,
	})

	if err := g.Generate(ctx, path, *size); err != nil {
		logger.Error("generation failed", zap.String("path", path), zap.Uint64("seed", g.Seed()), zap.Error(err))
		return 1
	}
	return 0
}
