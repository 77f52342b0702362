package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lucasmvf/pergola"
	"github.com/lucasmvf/pergola/internal/adapters/mcp"
	"github.com/lucasmvf/pergola/internal/params"
	"github.com/lucasmvf/pergola/internal/ratelimit"
	"github.com/lucasmvf/pergola/internal/tools"
	"github.com/lucasmvf/pergola/pkg/agent"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow> [param=value ...]",
	Short: "Execute a workflow to completion",
	Long: `Runs the named workflow. Parameter values are given as key=value
arguments; missing required parameters are prompted for when stdin is a
terminal (or --interactive is forced).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)

		provided, err := params.ParseOverrides(args[1:])
		if err != nil {
			return err
		}

		dir, _ := cmd.Flags().GetString("dir")
		backend, _ := cmd.Flags().GetString("backend")
		model, _ := cmd.Flags().GetString("model")
		command, _ := cmd.Flags().GetString("agent-command")
		port, _ := cmd.Flags().GetInt("model-port")
		interactive, _ := cmd.Flags().GetBool("interactive")

		limiter := ratelimit.New(ratelimit.DefaultConfig())
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

		// The run owns the tool-server lifecycle: the engine starts the
		// loopback transport on the first state that needs it, executors
		// hand its endpoint to the agent process, and it stops when the
		// run finishes.
		srv := mcp.NewServer(registry,
			mcp.WithServerLogger(logger),
			mcp.WithServerInfo("pergola", pergola.Version),
		)
		handle := srv.RunHandle("cli")

		opts := []pergola.Option{
			pergola.WithLogger(logger),
			pergola.WithStore(store),
			pergola.WithToolServer(handle),
			pergola.WithAgentConfig(agent.Config{
				Backend: agent.Backend(backend),
				Model:   model,
				Command: command,
				Port:    port,
			}),
		}
		if interactive || term.IsTerminal(int(os.Stdin.Fd())) {
			opts = append(opts, pergola.WithPrompter(newTerminalPrompter()))
		}

		eng, err := pergola.New(dir, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		run, err := eng.Run(ctx, args[0], provided)
		if err != nil {
			return err
		}

		fmt.Printf("run %s finished: %s\n", run.ID, run.Status)
		fmt.Printf("path: %v\n", run.History)
		if last := len(run.History); last > 0 {
			if w, werr := eng.Workflow(args[0]); werr == nil {
				if st, ok := w.State(run.History[last-1]); ok && st.Output != "" {
					fmt.Println()
					fmt.Println(run.Context[st.Output])
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("backend", string(agent.BackendClaudeCLI), "Agent backend: claude-cli or local-model")
	runCmd.Flags().String("model", "", "Model name passed to the backend")
	runCmd.Flags().String("agent-command", "", "Override the claude binary name")
	runCmd.Flags().Int("model-port", 0, "Loopback port of the local model server")
	runCmd.Flags().BoolP("interactive", "i", false, "Force interactive parameter prompting")
}
