package sorter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"linesort/src/models"
	"linesort/src/sysinfo"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

const plentyOfDisk = 1 << 40

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

// randomInput returns about size bytes of lines with many repeated texts
func randomInput(seed uint64, size int) string {
	r := rand.New(rand.NewPCG(seed, 1))
	words := []string{"Apple", "Banana is yellow", "Cherry is the best", "Something something something", "apple", "Apple pie"}

	var b strings.Builder
	for b.Len() < size {
		text := words[r.IntN(len(words))]
		if r.IntN(3) == 0 {
			text += fmt.Sprintf(" %d", r.IntN(1000))
		}
		fmt.Fprintf(&b, "%d. %s\n", r.Uint32(), text)
	}
	return b.String()
}

// expectedOutput sorts content with a plain comparison sort on parsed lines
func expectedOutput(t *testing.T, content string) string {
	t.Helper()
	var lines []models.Line
	for _, raw := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
		l, err := models.ParseLine([]byte(strings.TrimSuffix(raw, "\r")))
		if err != nil {
			t.Fatalf("ParseLine(%q) unexpected error: %v", raw, err)
		}
		lines = append(lines, l)
	}
	slices.SortFunc(lines, models.CompareLines)

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newSorter(t *testing.T, memory uint64, processors int, threshold int64) *Sorter {
	return New(&Options{
		SysInfo:            sysinfo.Static{Memory: memory, Processors: processors, Disk: plentyOfDisk},
		Logger:             zaptest.NewLogger(t),
		SmallFileThreshold: threshold,
	})
}

func TestSortOrdersByTextThenNumber(t *testing.T) {
	input := "2. banana\n1. apple\n10. apple\n"
	want := "1. apple\n10. apple\n2. banana\n"

	for _, threshold := range []int64{0, -1} {
		dir := t.TempDir()
		path := writeInput(t, dir, "input.txt", input)

		s := newSorter(t, 1<<30, 2, threshold)
		output, err := s.Sort(context.Background(), path)
		if err != nil {
			t.Fatalf("threshold=%d: Sort unexpected error: %v", threshold, err)
		}

		if output != filepath.Join(dir, "input_sorted.txt") {
			t.Errorf("threshold=%d: output path = %v", threshold, output)
		}
		got, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		if string(got) != want {
			t.Errorf("threshold=%d: output = %q, want %q", threshold, got, want)
		}
		if s.State() != Done || s.OutputPath() != output {
			t.Errorf("threshold=%d: state = %v, output path = %v", threshold, s.State(), s.OutputPath())
		}
	}
}

func TestSortSmallFileCreatesNoRun(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "small.txt", "3. c\r\n1. a\r\n2. b")

	output, err := newSorter(t, 1<<30, 4, 0).Sort(context.Background(), path)
	if err != nil {
		t.Fatalf("Sort unexpected error: %v", err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(got) != "1. a\n2. b\n3. c\n" {
		t.Errorf("output = %q", got)
	}
	if names := dirEntries(t, dir); !slices.Equal(names, []string{"small.txt", "small_sorted.txt"}) {
		t.Errorf("directory holds %v", names)
	}
}

func TestSortManyPartsMatchesSinglePart(t *testing.T) {
	input := randomInput(42, 400<<10)
	want := expectedOutput(t, input)

	tests := []struct {
		name       string
		memory     uint64
		processors int
	}{
		{name: "single part", memory: 1 << 30, processors: 4},
		{name: "many parts", memory: 100 << 10, processors: 3},
		{name: "many parts one processor", memory: 200 << 10, processors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeInput(t, dir, "input.txt", input)

			output, err := newSorter(t, tt.memory, tt.processors, -1).Sort(context.Background(), path)
			if err != nil {
				t.Fatalf("Sort unexpected error: %v", err)
			}

			got, err := os.ReadFile(output)
			if err != nil {
				t.Fatalf("failed to read output: %v", err)
			}
			if string(got) != want {
				t.Errorf("output differs from a comparison sort of the input")
			}
			if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt", "input_sorted.txt"}) {
				t.Errorf("directory holds %v", names)
			}

			original, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read input: %v", err)
			}
			if string(original) != input {
				t.Errorf("input was modified")
			}
		})
	}
}

func TestSortIsDeterministic(t *testing.T) {
	input := randomInput(7, 200<<10)
	dir := t.TempDir()
	path := writeInput(t, dir, "input.txt", input)

	var first []byte
	for i := range 3 {
		output, err := newSorter(t, 64<<10, i+2, -1).Sort(context.Background(), path)
		if err != nil {
			t.Fatalf("run %d: Sort unexpected error: %v", i, err)
		}
		got, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		if first == nil {
			first = got
		} else if !bytes.Equal(got, first) {
			t.Errorf("run %d produced different output", i)
		}
		if err := os.Remove(output); err != nil {
			t.Fatalf("failed to remove output: %v", err)
		}
	}
}

// cancelAfter cancels the sorter once the given number of reports arrived
type cancelAfter struct {
	mu      sync.Mutex
	sorter  *Sorter
	reports int
	limit   int
}

func (c *cancelAfter) Report(float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports++
	if c.reports == c.limit {
		c.sorter.Cancel()
		c.sorter.Cancel()
	}
}

func TestSortCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "input.txt", randomInput(3, 300<<10))

	sink := &cancelAfter{limit: 1}
	s := New(&Options{
		SysInfo:            sysinfo.Static{Memory: 64 << 10, Processors: 2, Disk: plentyOfDisk},
		Logger:             zaptest.NewLogger(t),
		Progress:           sink,
		SmallFileThreshold: -1,
	})
	sink.sorter = s

	_, err := s.Sort(context.Background(), path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sort error = %v, want context.Canceled", err)
	}
	if s.State() != Cancelled {
		t.Errorf("state = %v, want %v", s.State(), Cancelled)
	}
	if s.OutputPath() != "" {
		t.Errorf("output path = %v after cancellation", s.OutputPath())
	}
	if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt"}) {
		t.Errorf("directory holds %v after cancellation", names)
	}
}

func TestSortCancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "input.txt", randomInput(4, 100<<10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newSorter(t, 1<<30, 2, -1)
	if _, err := s.Sort(ctx, path); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sort error = %v, want context.Canceled", err)
	}
	if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt"}) {
		t.Errorf("directory holds %v after cancellation", names)
	}
}

func TestSortMalformedLine(t *testing.T) {
	for _, threshold := range []int64{0, -1} {
		dir := t.TempDir()
		input := randomInput(5, 150<<10) + "12 no separator\n" + randomInput(6, 10<<10)
		path := writeInput(t, dir, "input.txt", input)

		s := newSorter(t, 64<<10, 2, threshold)
		_, err := s.Sort(context.Background(), path)
		if !errors.Is(err, models.ErrMalformedLine) {
			t.Fatalf("threshold=%d: Sort error = %v, want ErrMalformedLine", threshold, err)
		}
		if s.State() != Failed {
			t.Errorf("threshold=%d: state = %v, want %v", threshold, s.State(), Failed)
		}
		if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt"}) {
			t.Errorf("threshold=%d: directory holds %v after failure", threshold, names)
		}
	}
}

func TestSortInsufficientDiskSpace(t *testing.T) {
	dir := t.TempDir()
	input := "2. b\n1. a\n"
	path := writeInput(t, dir, "input.txt", input)

	s := New(&Options{SysInfo: sysinfo.Static{Memory: 1 << 30, Processors: 1, Disk: uint64(len(input))}})
	if _, err := s.Sort(context.Background(), path); !errors.Is(err, ErrInsufficientDiskSpace) {
		t.Fatalf("Sort error = %v, want ErrInsufficientDiskSpace", err)
	}
	if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt"}) {
		t.Errorf("directory holds %v", names)
	}
}

func TestSortEmptyFile(t *testing.T) {
	for _, threshold := range []int64{0, -1} {
		dir := t.TempDir()
		path := writeInput(t, dir, "empty.txt", "")

		output, err := newSorter(t, 1<<30, 2, threshold).Sort(context.Background(), path)
		if err != nil {
			t.Fatalf("threshold=%d: Sort unexpected error: %v", threshold, err)
		}
		got, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("threshold=%d: output = %q, want empty", threshold, got)
		}
	}
}

func TestSortMissingInput(t *testing.T) {
	s := newSorter(t, 1<<30, 1, 0)
	if _, err := s.Sort(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Sort error = %v, want os.ErrNotExist", err)
	}
	if s.State() != Failed {
		t.Errorf("state = %v, want %v", s.State(), Failed)
	}
}

func TestSortedPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.txt")

	if got, want := SortedPath(input), filepath.Join(dir, "data_sorted.txt"); got != want {
		t.Errorf("SortedPath() = %v, want %v", got, want)
	}

	writeInput(t, dir, "data_sorted.txt", "")
	writeInput(t, dir, "data_sorted(1).txt", "")
	if got, want := SortedPath(input), filepath.Join(dir, "data_sorted(2).txt"); got != want {
		t.Errorf("SortedPath() = %v, want %v", got, want)
	}

	if got, want := SortedPath(filepath.Join(dir, "noext")), filepath.Join(dir, "noext_sorted"); got != want {
		t.Errorf("SortedPath() = %v, want %v", got, want)
	}
}

func TestStateString(t *testing.T) {
	if Merging.String() != "merging" || State(42).String() != "unknown" {
		t.Errorf("unexpected state names %q, %q", Merging, State(42))
	}
}

func TestSortRejectsOverlongLine(t *testing.T) {
	long := "5. " + strings.Repeat("x", 70<<10) + "\n"

	tests := []struct {
		name      string
		memory    uint64
		threshold int64
	}{
		{name: "whole file in memory", memory: 1 << 30, threshold: 1 << 30},
		{name: "many parts", memory: 100 << 10, threshold: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			input := randomInput(8, 200<<10) + long + randomInput(9, 200<<10)
			path := writeInput(t, dir, "input.txt", input)

			s := newSorter(t, tt.memory, 2, tt.threshold)
			if _, err := s.Sort(context.Background(), path); !errors.Is(err, models.ErrMalformedLine) {
				t.Fatalf("Sort error = %v, want ErrMalformedLine", err)
			}
			if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt"}) {
				t.Errorf("directory holds %v after failure", names)
			}
		})
	}
}

// sortWhileRunning starts a second sort from inside a progress report
type sortWhileRunning struct {
	mu     sync.Mutex
	sorter *Sorter
	path   string
	errs   []error
}

func (c *sortWhileRunning) Report(float64) {
	_, err := c.sorter.Sort(context.Background(), c.path)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func TestSortBusy(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "input.txt", randomInput(10, 200<<10))

	sink := &sortWhileRunning{path: path}
	s := New(&Options{
		SysInfo:            sysinfo.Static{Memory: 64 << 10, Processors: 2, Disk: plentyOfDisk},
		Logger:             zaptest.NewLogger(t),
		Progress:           sink,
		SmallFileThreshold: -1,
	})
	sink.sorter = s

	output, err := s.Sort(context.Background(), path)
	if err != nil {
		t.Fatalf("Sort unexpected error: %v", err)
	}
	if s.State() != Done || s.OutputPath() != output {
		t.Errorf("state = %v, output path = %v", s.State(), s.OutputPath())
	}

	if len(sink.errs) == 0 {
		t.Fatalf("no progress reported")
	}
	for i, err := range sink.errs {
		if !errors.Is(err, ErrBusy) {
			t.Errorf("nested Sort %d error = %v, want ErrBusy", i, err)
		}
	}
	if names := dirEntries(t, dir); !slices.Equal(names, []string{"input.txt", "input_sorted.txt"}) {
		t.Errorf("directory holds %v", names)
	}
}
