package txlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndOverflow(t *testing.T) {
	l := New("read log", 3)

	for i := 0; i < 3; i++ {
		slot, err := l.Append(uint64(0x1000+8*i), uint64(i))
		require.NoError(t, err)
		require.Equal(t, i, slot, "slots are handed out in append order")
	}
	require.Equal(t, 3, l.Len())

	_, err := l.Append(0x2000, 9)
	require.ErrorIs(t, err, ErrFull)
	require.Contains(t, err.Error(), "read log")
	require.Equal(t, 3, l.Len(), "a rejected append must not change the log")
}

func TestLog_AtMutatesInPlace(t *testing.T) {
	l := New("write log", 2)
	slot, err := l.Append(0x1000, 1)
	require.NoError(t, err)

	l.At(slot).Value = 42
	require.Equal(t, []Item{{Addr: 0x1000, Value: 42}}, l.Items())
}

func TestLog_ResetKeepsArena(t *testing.T) {
	l := New("write log", 2)
	_, err := l.Append(0x1000, 1)
	require.NoError(t, err)
	_, err = l.Append(0x1008, 2)
	require.NoError(t, err)

	l.Reset()
	require.Equal(t, 0, l.Len())
	require.Empty(t, l.Items())
	require.Equal(t, 2, l.Capacity())

	slot, err := l.Append(0x2000, 3)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
}
