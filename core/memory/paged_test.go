package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaged_LoadStore(t *testing.T) {
	m := NewPaged()
	require.Zero(t, m.Load(0x1000))
	require.Equal(t, 0, m.Pages(), "loads must not materialize pages")

	m.Store(0x1000, 7)
	require.Equal(t, uint64(7), m.Load(0x1000))
	require.Equal(t, uint64(7), m.Load(0x1003), "unaligned loads hit the containing word")
	require.Zero(t, m.Load(0x1008))
	require.Equal(t, 1, m.Pages())
}

func TestPaged_Alloc(t *testing.T) {
	m := NewPaged()
	a, err := m.Alloc(3)
	require.NoError(t, err)
	require.Equal(t, HeapBase, a)

	b, err := m.Alloc(9)
	require.NoError(t, err)
	require.Equal(t, HeapBase+CacheLineSize, b)
	require.Zero(t, b%CacheLineSize)

	c := m.MustAlloc(1)
	require.Equal(t, b+2*CacheLineSize, c)

	_, err = m.Alloc(0)
	require.Error(t, err)
}

func TestPaged_SnapshotAndHelpers(t *testing.T) {
	m := NewPaged()
	base := m.MustAlloc(600) // spans two pages
	vals := make([]uint64, 600)
	for i := range vals {
		vals[i] = uint64(i + 1)
	}
	Fill(m, base, vals)

	require.Equal(t, vals, Read(m, base, len(vals)))
	snap := m.Snapshot()
	require.Len(t, snap, 600)
	require.Equal(t, uint64(600), snap[base+599*WordSize])

	dump := m.Dump()
	require.Equal(t, [2]uint64{base, 1}, dump[0])
	require.Equal(t, 2, m.Pages())
}

func TestPaged_ConcurrentStores(t *testing.T) {
	m := NewPaged()
	base := m.MustAlloc(64 * 8)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				m.Store(base+uint64(g*64+i)*WordSize, uint64(g))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		require.Equal(t, uint64(g), m.Load(base+uint64(g*64+63)*WordSize))
	}
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, uint64(0x1000), AlignDown(0x1007))
	require.Equal(t, uint64(0x1008), AlignDown(0x1008))
}
