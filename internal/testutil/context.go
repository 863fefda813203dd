// Package testutil provides small helpers shared by the package test suites.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/vk/wasmchat/internal/ctxlog"
)

// Context returns a context carrying a logger suitable for tests. The logger
// discards output unless the test runs with -v, in which case records go
// through t.Log.
func Context(t *testing.T) context.Context {
	t.Helper()
	var handler slog.Handler
	if testing.Verbose() {
		handler = slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	return ctxlog.WithLogger(context.Background(), slog.New(handler))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
