// Package kernels holds reference loops for the speculative runner. Each
// kernel lays out its arrays in a paged memory, describes the loop over them
// and knows how to check the result against the sequential semantics.
package kernels

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sushant-115/gojostm/core/loop"
	"github.com/sushant-115/gojostm/core/memory"
)

var (
	ErrUnknownKernel = errors.New("unknown kernel")
	ErrMismatch      = errors.New("result mismatch")
	ErrEmptyKernel   = errors.New("kernel needs at least one iteration")
)

// Params sizes a workload.
type Params struct {
	// N is the number of loop iterations.
	N uint64 `yaml:"iterations" json:"iterations"`
	// Chunk is the number of iterations per transaction. Zero leaves the
	// choice to the runner, except for kernels that need to know it.
	Chunk uint64 `yaml:"chunk" json:"chunk"`
}

// Workload is a loop ready to run plus the check of its result.
type Workload struct {
	Name        string
	Description string
	Loop        loop.Loop
	// Verify compares memory after the loop with the sequential result.
	Verify func(m memory.Memory) error
}

// Builder allocates and initializes a workload in mem.
type Builder func(mem *memory.Paged, p Params) (Workload, error)

var registry = map[string]Builder{
	"scale":      Scale,
	"histogram":  Histogram,
	"recurrence": Recurrence,
	"cursor":     Cursor,
}

// ByName returns the builder registered under name.
func ByName(name string) (Builder, error) {
	b, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownKernel, name, Names())
	}
	return b, nil
}

// Names lists the registered kernels in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// expectWords checks n words at base against want(i).
func expectWords(m memory.Memory, kernel string, base uint64, n uint64, want func(i uint64) uint64) error {
	for i := uint64(0); i < n; i++ {
		got := m.Load(base + i*memory.WordSize)
		if w := want(i); got != w {
			return fmt.Errorf("%w: %s word %d = %d, want %d", ErrMismatch, kernel, i, got, w)
		}
	}
	return nil
}

func alloc(mem *memory.Paged, words uint64) (uint64, error) {
	base, err := mem.Alloc(int(words))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %d words: %w", words, err)
	}
	return base, nil
}
