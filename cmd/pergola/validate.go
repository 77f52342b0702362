package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasmvf/pergola"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow>",
	Short: "Check a workflow definition without running it",
	Long: `Loads and validates the named workflow: parameter declarations,
transition targets, condition expressions, default-rule ordering, and
prompt templates. Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		dir, _ := cmd.Flags().GetString("dir")

		eng, err := pergola.New(dir, pergola.WithLogger(logger))
		if err != nil {
			return err
		}

		w, err := eng.Workflow(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid (%d states, %d parameters, source %s)\n",
			w.Name, len(w.States), len(w.Parameters), w.Source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
