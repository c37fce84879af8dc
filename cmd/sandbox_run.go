package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat/internal/sandbox"
)

// sandboxRunCmd is the child side of the process and docker sandboxes.
var sandboxRunCmd = &cobra.Command{
	Use:    sandbox.RunnerCommand + " <dir>",
	Short:  "Execute a prepared sandbox job directory",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sandbox.RunJob(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(sandboxRunCmd)
}
