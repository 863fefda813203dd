package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/vk/wasmchat/internal/config"
	"github.com/vk/wasmchat/internal/ctxlog"
	"github.com/vk/wasmchat/internal/rpc"
	"github.com/vk/wasmchat/internal/wasm"
)

// App encapsulates the daemon's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	inR    io.Reader
	logger *slog.Logger
	cfg    *Config
	file   *config.File

	// preprocess lazily loads the validated preprocessing module. Nil when
	// no module is configured.
	preprocess *wasm.Loader

	// The worker process is created at most once, on first need, and the
	// load handshake outcome is shared by all callers that raced on it.
	// workerMu guards worker and workerErr; workerOnce provides the
	// single-flight.
	workerOnce sync.Once
	workerMu   sync.Mutex
	worker     *rpc.Worker
	workerErr  error

	closeOnce sync.Once
}

// NewApp is the constructor for the daemon. It returns a fully initialized
// App instance with its own isolated logger. A failure to load the
// configuration file is a fatal startup error and panics; the entrypoint
// recovers it into a clean exit.
func NewApp(outW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	fileCfg, err := config.Load(appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded.", "path", appConfig.ConfigPath)

	a := &App{
		outW:   outW,
		inR:    os.Stdin,
		logger: logger,
		cfg:    appConfig,
		file:   fileCfg,
	}
	if fileCfg.PreprocessModule != "" {
		a.preprocess = wasm.NewLoader(
			wasm.FileInitializer(fileCfg.PreprocessModule),
			wasm.PreprocessContract,
		)
	}
	return a
}

// ensureWorker spawns the worker process and performs the load handshake
// exactly once. Every caller, concurrent or later, observes the same
// outcome.
func (a *App) ensureWorker(ctx context.Context) (*rpc.Channel, error) {
	a.workerOnce.Do(func() {
		w, err := a.startWorker(ctx)
		a.workerMu.Lock()
		a.worker, a.workerErr = w, err
		a.workerMu.Unlock()
	})

	a.workerMu.Lock()
	w, err := a.worker, a.workerErr
	a.workerMu.Unlock()
	if err != nil {
		return nil, err
	}
	return w.Channel(), nil
}

// startWorker spawns the worker process and performs the load handshake.
func (a *App) startWorker(ctx context.Context) (*rpc.Worker, error) {
	logger := ctxlog.FromContext(ctx)
	if a.file.WorkerBinary == "" {
		return nil, fmt.Errorf("%w: no worker_binary configured", rpc.ErrNotInitialized)
	}

	logger.Info("Starting generation worker.", "binary", a.file.WorkerBinary)
	w, err := rpc.Spawn(ctx, a.file.WorkerBinary, "-config", a.cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	// The first message to a fresh worker must be the load command.
	callCtx, cancel := context.WithTimeout(ctx, a.file.GenerateTimeout())
	defer cancel()
	resp, err := w.Channel().Call(callCtx, rpc.Request{Type: rpc.KindLoad})
	if err != nil {
		_ = w.Close(ctx)
		return nil, fmt.Errorf("worker load handshake failed: %w", err)
	}
	if resp.Type != rpc.KindLoaded {
		_ = w.Close(ctx)
		return nil, fmt.Errorf("worker load handshake returned %q, want %q", resp.Type, rpc.KindLoaded)
	}

	logger.Info("Generation worker ready.")
	return w, nil
}

// Close tears the daemon down. The worker is terminated once; no further
// messages are sent to it afterwards.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		ctx = ctxlog.WithLogger(ctx, a.logger)
		a.workerMu.Lock()
		w := a.worker
		a.workerMu.Unlock()
		if w != nil {
			err = w.Close(ctx)
		}
	})
	return err
}
