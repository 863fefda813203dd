package app

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/vk/wasmchat/internal/ctxlog"
)

// Run executes the interactive loop: it reads user messages line by line,
// routes each through Chat, and prints the generated reply. No error that
// reaches this boundary is process-fatal; failed calls are reported and the
// loop continues.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.HealthcheckPort > 0 {
		go a.startHealthcheckServer(a.cfg.HealthcheckPort)
	}

	fmt.Fprintln(a.outW, "wasmchat ready. Type a message and press enter; EOF exits.")

	scanner := bufio.NewScanner(a.inR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := a.Chat(ctx, line)
		if err != nil {
			a.logger.Error("Chat call failed.", "error", err)
			fmt.Fprintf(a.outW, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(a.outW, "< %s\n", reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return a.Close(ctx)
}
