package rpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/vk/wasmchat/internal/ctxlog"
)

// Worker is a spawned worker process addressed exclusively through its
// Channel. It is created at most once by the orchestrator, reused for all
// calls, and torn down once at shutdown.
type Worker struct {
	cmd *exec.Cmd
	ch  *Channel
}

// Spawn starts the worker binary with stdin/stdout wired to a fresh Channel
// and stderr streamed to the logger. The first message sent to it must be a
// load command.
func Spawn(ctx context.Context, binary string, args ...string) (*Worker, error) {
	logger := ctxlog.FromContext(ctx).With("worker", binary)

	cmd := exec.Command(binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("rpc: opening worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("rpc: opening worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("rpc: opening worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("rpc: starting worker process: %w", err)
	}
	logger.Info("Worker process started.", "pid", cmd.Process.Pid)

	go forwardStderr(stderr, logger)

	return &Worker{
		cmd: cmd,
		ch:  NewChannel(ctx, stdin, stdout),
	}, nil
}

// Channel returns the RPC channel to the worker.
func (w *Worker) Channel() *Channel { return w.ch }

// Close tears the worker down: the channel is closed (which closes the
// worker's stdin and rejects further sends) and the process is waited on,
// with a kill after a grace period.
func (w *Worker) Close(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	_ = w.ch.Close()

	waited := make(chan error, 1)
	go func() { waited <- w.cmd.Wait() }()

	select {
	case err := <-waited:
		logger.Debug("Worker process exited.", "error", err)
		return err
	case <-time.After(5 * time.Second):
		logger.Warn("Worker did not exit in time, killing it.")
		_ = w.cmd.Process.Kill()
		return <-waited
	}
}

// forwardStderr relays the worker's stderr lines into the daemon log so
// worker-side diagnostics are not lost.
func forwardStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("worker stderr", "line", scanner.Text())
	}
}
