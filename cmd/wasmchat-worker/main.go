// The wasmchat-worker binary is the isolated generation worker. It speaks
// the JSON line protocol on stdin/stdout and logs exclusively to stderr;
// stdout belongs to the wire.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/vk/wasmchat/internal/config"
	"github.com/vk/wasmchat/internal/ctxlog"
	"github.com/vk/wasmchat/internal/fetch"
	"github.com/vk/wasmchat/internal/wasm"
	"github.com/vk/wasmchat/internal/worker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("wasmchat-worker", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	configFlag := flagSet.String("config", "", "Path to the HCL configuration file.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level.")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *configFlag == "" {
		return fmt.Errorf("the -config flag is required")
	}

	level := slog.LevelInfo
	if *logLevelFlag == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	fileCfg, err := config.Load(*configFlag)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if fileCfg.Model == nil {
		return fmt.Errorf("configuration has no model block; the worker has nothing to load")
	}

	fetcher := fetch.New(fileCfg.FetchConfig())
	defer fetcher.Close()

	var loader *wasm.Loader
	if fileCfg.LanguageModule != "" {
		loader = wasm.NewLoader(
			wasm.FileInitializer(fileCfg.LanguageModule),
			wasm.LanguageContract,
		)
	}

	engine := worker.NewModelEngine(fileCfg.Model.URL, fetcher, loader)
	logger.Info("Worker started, serving on stdio.")
	return worker.Serve(ctx, os.Stdin, os.Stdout, engine)
}
