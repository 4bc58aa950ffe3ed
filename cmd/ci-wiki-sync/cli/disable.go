package cli

import "github.com/spf13/cobra"

var disableCmd = &cobra.Command{
	Use:     "disable <target_name>",
	Short:   "Disable a watch target by name",
	Args:    cobra.ExactArgs(1),
	PreRunE: func(*cobra.Command, []string) error { return requireConfigPath() },
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
	ValidArgsFunction: completeTargetNames,
}

func init() {
	rootCmd.AddCommand(disableCmd)
}
