package testhelpers

import (
	"bytes"
	"io"
	"testing"
)

type testWriter struct {
	t testing.TB
}

// NewWriter returns a log sink that reports every line through t.Log so that logs show up next to the failing test.
func NewWriter(t testing.TB) io.Writer {
	t.Helper()
	return &testWriter{t: t}
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
