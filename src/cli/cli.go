// Package cli holds the setup shared by the command line tools
package cli

import (
	"context"
	"linesort/src/sysinfo"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a production console logger, at debug level when verbose is set
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// LogSystem logs the resources a run will size itself against
// path selects the filesystem whose free space is reported
func LogSystem(logger *zap.Logger, sys sysinfo.Provider, path string) {
	fields := []zap.Field{zap.Int("processors", sys.ProcessorCount())}

	if memory, err := sys.AvailableMemory(); err != nil {
		logger.Warn("LogSystem: failed to read available memory", zap.Error(err))
	} else {
		fields = append(fields, zap.Uint64("availableMemory", memory))
	}

	if disk, err := sys.FreeDisk(path); err != nil {
		logger.Warn("LogSystem: failed to read free disk space", zap.Error(err))
	} else {
		fields = append(fields, zap.Uint64("freeDisk", disk))
	}

	logger.Info("system parameters", fields...)
}
