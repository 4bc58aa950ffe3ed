package cli

import (
	"fmt"
	"os"

	"github.com/davarch/ci-wiki-sync/internal/infrastructure/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	cfgPath    string
	saveConfig string
	verbose    bool
	version    = "dev"

	fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "ci-wiki-sync",
	Short: "Publish GitLab pipeline results into a Confluence page section",
	Long: `Publish GitLab pipeline results into a Confluence page section.

Configuration priority (highest to lowest):
  1. Command line flags
  2. Config file (YAML, or TOML for *.toml)
  3. Environment variables
  4. Default values`,
	Example: `  # sync one pipeline
  ci-wiki-sync sync -p 123 --project-id 456 --confluence-page-id 789 -c config.yaml

  # write a configuration template
  ci-wiki-sync --save-config config.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if saveConfig == "" {
			return cmd.Help()
		}
		if err := config.WriteTemplate(fs, saveConfig); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration template saved to: %s\n", saveConfig)
		fmt.Fprintln(cmd.OutOrStdout(), "Please update the values in the config file before running a sync.")
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML or TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().StringVar(&saveConfig, "save-config", "", "write a configuration template to this path and exit")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	})

	comp := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	rootCmd.AddCommand(comp)
}

// requireConfigPath is for commands that edit the config file in place.
func requireConfigPath() error {
	if cfgPath == "" {
		return fmt.Errorf("--config is required")
	}
	return nil
}
