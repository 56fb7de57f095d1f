// Package loop runs a loop whose iterations were written for sequential
// execution on several worker threads, speculatively, through the stm engine.
package loop

import (
	"errors"
	"fmt"

	"github.com/sushant-115/gojostm/core/stm"
	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/stm/predict"
)

var (
	ErrNoBody    = errors.New("loop has no body")
	ErrBadBounds = errors.New("loop end is before its start")
)

// Range is the half-open iteration range [Start, End) executed by one
// transaction.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) Len() uint64 { return r.End - r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Body executes the iterations of r. Every shared memory access must go
// through th. The body may read and modify regs; after a rollback it is
// re-run from the start with regs restored. A returned error or a panic is
// handled as a fault of the region.
type Body func(th *stm.Thread, regs *checkpoint.RegisterFile, r Range) error

// Metadata is what loop analysis knows about a loop.
type Metadata struct {
	Name string `yaml:"name"`
	// StartPC is where a rolled back region resumes.
	StartPC uint64 `yaml:"start_pc"`
	// LiveOut lists the registers whose value after the last iteration is
	// visible after the loop.
	LiveOut checkpoint.Mask `yaml:"live_out"`
	// Inductions are the variables the body may read through Thread.Predict.
	Inductions []predict.Variable `yaml:"inductions"`
}

// Loop is one parallelizable loop.
type Loop struct {
	Meta  Metadata
	Start uint64
	End   uint64
	// Chunk is the number of iterations per transaction. Zero uses the
	// runner's configured chunk size.
	Chunk uint64
	// Init holds the registers at loop entry. Every range starts from them.
	Init checkpoint.RegisterFile
	Body Body
}

// Validate checks the loop description.
func (l *Loop) Validate() error {
	if l.Body == nil {
		return fmt.Errorf("%w: %s", ErrNoBody, l.Meta.Name)
	}
	if l.End < l.Start {
		return fmt.Errorf("%w: %s [%d,%d)", ErrBadBounds, l.Meta.Name, l.Start, l.End)
	}
	for _, v := range l.Meta.Inductions {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("loop %s: %w", l.Meta.Name, err)
		}
	}
	return nil
}

// Ranges splits the iteration space into chunk-sized ranges in order. The
// index of a range is the ticket of its transaction.
func (l *Loop) Ranges(chunk uint64) []Range {
	if chunk == 0 {
		chunk = 1
	}
	var out []Range
	for s := l.Start; s < l.End; s += chunk {
		e := s + chunk
		if e > l.End || e < s {
			e = l.End
		}
		out = append(out, Range{Start: s, End: e})
	}
	return out
}
