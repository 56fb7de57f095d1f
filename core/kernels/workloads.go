package kernels

import (
	"fmt"

	"github.com/sushant-115/gojostm/core/loop"
	"github.com/sushant-115/gojostm/core/memory"
	"github.com/sushant-115/gojostm/core/stm"
	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/stm/predict"
)

const (
	scaleFactor   = 3
	histogramBins = 16
)

func word(base, i uint64) uint64 { return base + i*memory.WordSize }

// input is the deterministic content of the source arrays.
func input(i uint64) uint64 { return (i*2654435761 + 12345) % 1000 }

// Scale computes a[i] = 3*b[i]. Iterations are independent, so no range ever
// conflicts with another.
func Scale(mem *memory.Paged, p Params) (Workload, error) {
	if p.N == 0 {
		return Workload{}, ErrEmptyKernel
	}
	a, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	b, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	for i := uint64(0); i < p.N; i++ {
		mem.Store(word(b, i), input(i))
	}

	l := loop.Loop{
		Meta:  loop.Metadata{Name: "scale", StartPC: 0x401000},
		End:   p.N,
		Chunk: p.Chunk,
		Body: func(th *stm.Thread, regs *checkpoint.RegisterFile, r loop.Range) error {
			for i := r.Start; i < r.End; i++ {
				th.Write(word(a, i), scaleFactor*th.Read(word(b, i)))
			}
			regs.Set(checkpoint.RCX, r.End)
			return nil
		},
	}
	l.Meta.LiveOut = checkpoint.MaskOf(checkpoint.RCX)

	return Workload{
		Name:        "scale",
		Description: fmt.Sprintf("a[i] = %d*b[i] over %d words", scaleFactor, p.N),
		Loop:        l,
		Verify: func(m memory.Memory) error {
			return expectWords(m, "scale", a, p.N, func(i uint64) uint64 { return scaleFactor * input(i) })
		},
	}, nil
}

// Histogram counts data[i] mod 16 into shared bins with read-modify-write
// accesses. Every range touches most bins, so younger ranges conflict with
// older ones and retry.
func Histogram(mem *memory.Paged, p Params) (Workload, error) {
	if p.N == 0 {
		return Workload{}, ErrEmptyKernel
	}
	data, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	bins, err := alloc(mem, histogramBins)
	if err != nil {
		return Workload{}, err
	}
	var want [histogramBins]uint64
	for i := uint64(0); i < p.N; i++ {
		v := input(i)
		mem.Store(word(data, i), v)
		want[v%histogramBins]++
	}

	return Workload{
		Name:        "histogram",
		Description: fmt.Sprintf("%d-bin histogram of %d words", histogramBins, p.N),
		Loop: loop.Loop{
			Meta:  loop.Metadata{Name: "histogram", StartPC: 0x402000},
			End:   p.N,
			Chunk: p.Chunk,
			Body: func(th *stm.Thread, _ *checkpoint.RegisterFile, r loop.Range) error {
				for i := r.Start; i < r.End; i++ {
					bin := word(bins, th.Read(word(data, i))%histogramBins)
					th.Write(bin, th.ReadModifyWrite(bin)+1)
				}
				return nil
			},
		},
		Verify: func(m memory.Memory) error {
			return expectWords(m, "histogram", bins, histogramBins, func(i uint64) uint64 { return want[i] })
		},
	}, nil
}

// Recurrence computes the prefix sum a[i] = a[i-1] + b[i]. Each range depends
// on the last word written by its predecessor, so speculation only pays off
// for the iterations after that first read.
func Recurrence(mem *memory.Paged, p Params) (Workload, error) {
	if p.N == 0 {
		return Workload{}, ErrEmptyKernel
	}
	a, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	b, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	want := make([]uint64, p.N)
	var sum uint64
	for i := uint64(0); i < p.N; i++ {
		v := input(i) % 10
		mem.Store(word(b, i), v)
		sum += v
		want[i] = sum
	}
	mem.Store(a, want[0])

	return Workload{
		Name:        "recurrence",
		Description: fmt.Sprintf("prefix sum over %d words", p.N),
		Loop: loop.Loop{
			Meta:  loop.Metadata{Name: "recurrence", StartPC: 0x403000},
			Start: 1,
			End:   p.N,
			Chunk: p.Chunk,
			Body: func(th *stm.Thread, _ *checkpoint.RegisterFile, r loop.Range) error {
				prev := th.Read(word(a, r.Start-1))
				for i := r.Start; i < r.End; i++ {
					prev += th.Read(word(b, i))
					th.Write(word(a, i), prev)
				}
				return nil
			},
		},
		Verify: func(m memory.Memory) error {
			return expectWords(m, "recurrence", a, p.N, func(i uint64) uint64 { return want[i] })
		},
	}, nil
}

// Cursor appends f(a[i]) to an output array through a shared cursor that
// every iteration advances by one. The cursor is the only cross-range
// dependence and is an induction variable, so younger ranges predict it
// instead of conflicting on it.
func Cursor(mem *memory.Paged, p Params) (Workload, error) {
	if p.N == 0 {
		return Workload{}, ErrEmptyKernel
	}
	chunk := p.Chunk
	if chunk == 0 {
		chunk = loop.DefaultChunkSize
	}
	in, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	out, err := alloc(mem, p.N)
	if err != nil {
		return Workload{}, err
	}
	cursor, err := alloc(mem, 1)
	if err != nil {
		return Workload{}, err
	}
	for i := uint64(0); i < p.N; i++ {
		mem.Store(word(in, i), input(i))
	}
	f := func(v uint64) uint64 { return 2*v + 1 }

	v := predict.Variable{Name: "cursor", Addr: cursor, Stride: chunk, Op: predict.OpAdd}
	return Workload{
		Name:        "cursor",
		Description: fmt.Sprintf("cursor append of %d words, stride %d", p.N, chunk),
		Loop: loop.Loop{
			Meta: loop.Metadata{
				Name:       "cursor",
				StartPC:    0x404000,
				LiveOut:    checkpoint.MaskOf(checkpoint.RDI),
				Inductions: []predict.Variable{v},
			},
			End:   p.N,
			Chunk: chunk,
			Body: func(th *stm.Thread, regs *checkpoint.RegisterFile, r loop.Range) error {
				pos := th.Predict(v)
				for i := r.Start; i < r.End; i++ {
					th.Write(word(out, pos), f(th.Read(word(in, i))))
					pos++
				}
				th.Write(cursor, pos)
				regs.Set(checkpoint.RDI, pos)
				return nil
			},
		},
		Verify: func(m memory.Memory) error {
			if got := m.Load(cursor); got != p.N {
				return fmt.Errorf("%w: cursor = %d, want %d", ErrMismatch, got, p.N)
			}
			return expectWords(m, "cursor", out, p.N, func(i uint64) uint64 { return f(input(i)) })
		},
	}, nil
}
