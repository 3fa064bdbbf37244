package sysinfo

import (
	"runtime"
	"testing"
)

func TestStatic(t *testing.T) {
	s := Static{Memory: 100, Disk: 200}
	if got := s.ProcessorCount(); got != 1 {
		t.Errorf("ProcessorCount() = %d, want 1", got)
	}
	if got, _ := s.AvailableMemory(); got != 100 {
		t.Errorf("AvailableMemory() = %d, want 100", got)
	}
	if got, _ := s.FreeDisk("/anywhere"); got != 200 {
		t.Errorf("FreeDisk() = %d, want 200", got)
	}
}

func TestLimited(t *testing.T) {
	tests := []struct {
		name   string
		memory uint64
		limit  uint64
		want   uint64
	}{
		{name: "no limit", memory: 1000, limit: 0, want: 1000},
		{name: "limit below", memory: 1000, limit: 10, want: 10},
		{name: "limit above", memory: 1000, limit: 5000, want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Limited{Provider: Static{Memory: tt.memory, Processors: 3}, MaxMemory: tt.limit}
			got, err := l.AvailableMemory()
			if err != nil {
				t.Fatalf("AvailableMemory unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AvailableMemory() = %d, want %d", got, tt.want)
			}
			if l.ProcessorCount() != 3 {
				t.Errorf("ProcessorCount() = %d, want 3", l.ProcessorCount())
			}
		})
	}
}

func TestOS(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("resource queries are implemented for linux only")
	}

	sys := NewOS()
	if sys.ProcessorCount() < 1 {
		t.Errorf("ProcessorCount() = %d", sys.ProcessorCount())
	}
	if memory, err := sys.AvailableMemory(); err != nil || memory == 0 {
		t.Errorf("AvailableMemory() = %d, %v", memory, err)
	}
	if disk, err := sys.FreeDisk(t.TempDir()); err != nil {
		t.Errorf("FreeDisk() error: %v", err)
	} else if disk == 0 {
		t.Logf("FreeDisk() reported a full filesystem")
	}
}
