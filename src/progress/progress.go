// Package progress receives completion fractions from long-running operations
package progress

import (
	"math"
	"sync"

	"go.uber.org/zap"
)

// Sink accepts a completion fraction in [0, 1]. Implementations must be safe for concurrent use
type Sink interface {
	Report(fraction float64)
}

// Nop discards every report
type Nop struct{}

// Report does nothing
func (Nop) Report(float64) {}

// Logger logs progress each time it advances by at least Step
type Logger struct {
	logger *zap.Logger
	label  string
	step   float64

	mu   sync.Mutex
	last float64
}

// NewLogger returns a Sink that logs label with the percentage done every step
func NewLogger(logger *zap.Logger, label string, step float64) *Logger {
	if step <= 0 {
		step = 0.01
	}
	return &Logger{logger: logger, label: label, step: step, last: -1}
}

// Report logs fraction if it moved by at least one step since the last log, or reached 1
func (l *Logger) Report(fraction float64) {
	fraction = math.Max(0, math.Min(1, fraction))

	l.mu.Lock()
	defer l.mu.Unlock()

	if fraction-l.last < l.step && (fraction != 1 || l.last == 1) {
		return
	}
	l.last = fraction
	l.logger.Info(l.label, zap.Int("percent", int(fraction*100)))
}
