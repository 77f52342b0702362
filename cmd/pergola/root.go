package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasmvf/pergola/internal/adapters/memory"
	"github.com/lucasmvf/pergola/internal/adapters/redis"
	"github.com/lucasmvf/pergola/internal/logging"
	"github.com/lucasmvf/pergola/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "pergola",
	Short: "Pergola runs declarative agent workflows",
	Long: `Pergola is a local orchestration engine: declarative multi-step
workflows, written as markdown with YAML frontmatter, that drive
generative-AI coding agents through a shared tool server.`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Project directory (anchors .pergola/workflows)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for run storage (empty = in-memory)")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	jsonMode, _ := cmd.Flags().GetBool("log-json")
	logger := logging.New(logging.ParseLevel(level), jsonMode)
	slog.SetDefault(logger)
	return logger
}

func newStore(cmd *cobra.Command) ports.RunStore {
	addr, _ := cmd.Flags().GetString("redis")
	if addr == "" {
		return memory.NewStore()
	}
	return redis.New(addr, "", 0)
}
