package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mini",
		Short:         "Autonomous issue-resolution agent",
		Long:          "mini drives a language model and a shell in a loop: propose one command, run it, observe, repeat until the model submits its result or a budget runs out.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.mini/config.yaml)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newSWEBenchCommand())
	root.AddCommand(newVersionCommand())
	return root
}
