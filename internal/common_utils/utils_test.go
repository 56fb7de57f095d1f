package commonutils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoID(t *testing.T) {
	id := GoID()
	require.Greater(t, id, int64(0))

	other := make(chan int64)
	go func() { other <- GoID() }()
	require.NotEqual(t, id, <-other)
}

func TestCaller(t *testing.T) {
	c := Caller(1)
	require.Contains(t, c, "utils_test.go:")
	require.Contains(t, c, "TestCaller")
}

func TestPanicValue(t *testing.T) {
	require.NoError(t, PanicValue(nil))

	sentinel := errors.New("boom")
	require.Same(t, sentinel, PanicValue(sentinel))
	require.EqualError(t, PanicValue(42), "panic: 42")
}
