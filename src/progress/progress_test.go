package progress

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerSteps(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogger(zap.New(core), "sorting", 0.25)

	for _, f := range []float64{0, 0.125, 0.25, 0.375, 0.5, 0.625, 0.875, 1, 1, 1.5} {
		sink.Report(f)
	}

	var got []int64
	for _, entry := range logs.FilterMessage("sorting").All() {
		got = append(got, entry.ContextMap()["percent"].(int64))
	}

	want := []int64{0, 25, 50, 87, 100}
	if len(got) != len(want) {
		t.Fatalf("logged percents %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("logged percents %v, want %v", got, want)
			break
		}
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Report(0.5)
}
