package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasmvf/pergola"
	"github.com/lucasmvf/pergola/internal/adapters/mcp"
	"github.com/lucasmvf/pergola/internal/ratelimit"
	"github.com/lucasmvf/pergola/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP tool server",
	Long: `Exposes the tool catalog to agents over the Model Context Protocol.

Transports:
- stdio (default): JSON-RPC over stdin/stdout, for piped agent processes.
- sse: Server-Sent Events over HTTP, for networked agents. Also serves
  /metrics and /healthz.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)

		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		dir, _ := cmd.Flags().GetString("dir")

		window, _ := cmd.Flags().GetDuration("rate-window")
		global, _ := cmd.Flags().GetInt("rate-global")
		client, _ := cmd.Flags().GetInt("rate-client")
		expensive, _ := cmd.Flags().GetInt("rate-expensive")

		limiter := ratelimit.New(ratelimit.Config{
			Window:            window,
			GlobalCapacity:    global,
			ClientCapacity:    client,
			ExpensiveCapacity: expensive,
		})

		store := newStore(cmd)
		registry := tools.NewRegistry(&tools.Context{
			Logger:  logger,
			Limiter: limiter,
			Runs:    store,
			WorkDir: dir,
		})
		if err := tools.RegisterBuiltins(registry); err != nil {
			return err
		}

		srv := mcp.NewServer(registry,
			mcp.WithServerLogger(logger),
			mcp.WithServerInfo("pergola", pergola.Version),
		)

		switch transport {
		case "stdio":
			return srv.ServeStdio()
		case "sse":
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("mcp server stopped")
			return nil
		default:
			return fmt.Errorf("unknown transport %q (supported: stdio, sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("transport", "stdio", "Transport: stdio or sse")
	serveCmd.Flags().Int("port", 8940, "Port for the sse transport")
	serveCmd.Flags().Duration("rate-window", time.Minute, "Rate limit window")
	serveCmd.Flags().Int("rate-global", 120, "Global tool calls per window (0 = unlimited)")
	serveCmd.Flags().Int("rate-client", 60, "Per-client tool calls per window (0 = unlimited)")
	serveCmd.Flags().Int("rate-expensive", 10, "Expensive tool calls per window (0 = unlimited)")
}
