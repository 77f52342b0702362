package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasmvf/pergola"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		dir, _ := cmd.Flags().GetString("dir")

		eng, err := pergola.New(dir, pergola.WithLogger(logger))
		if err != nil {
			return err
		}

		names, err := eng.Workflows()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSOURCE\tDESCRIPTION")
		for _, name := range names {
			w, err := eng.Workflow(name)
			if err != nil {
				fmt.Fprintf(tw, "%s\t-\t(broken: %v)\n", name, err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", w.Name, w.Source, w.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
