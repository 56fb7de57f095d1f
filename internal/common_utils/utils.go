package commonutils

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

func GoID() int64 {
	// A small buffer is enough for the first line of runtime.Stack
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	// The first line looks like: "goroutine 123 [running]:\n"
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Caller describes a frame of the calling goroutine as "file:line (func)".
func Caller(skip int) string {
	// skip=0 -> this function
	// skip=1 -> caller of this function
	// skip=2 -> caller's caller, and so on
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s:%d (%s)", filepath.Base(file), line, name)
}

// PanicValue turns a recovered panic value into an error.
func PanicValue(r any) error {
	switch v := r.(type) {
	case nil:
		return nil
	case error:
		return v
	default:
		return fmt.Errorf("panic: %v", v)
	}
}
