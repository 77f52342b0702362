package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasmvf/pergola"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pergola version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pergola version %s\n", pergola.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
