package cli

import (
	"fmt"
	"strings"

	"github.com/davarch/ci-wiki-sync/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:     "enable <target_name>",
	Short:   "Enable a watch target by name",
	Args:    cobra.ExactArgs(1),
	PreRunE: func(*cobra.Command, []string) error { return requireConfigPath() },
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
	ValidArgsFunction: completeTargetNames,
}

func init() {
	rootCmd.AddCommand(enableCmd)
}

// setEnabled flips every target called name and rewrites the config file
// when anything changed. Only the file's own content is edited and saved.
func setEnabled(cmd *cobra.Command, name string, enabled bool) error {
	cfg, err := config.LoadFile(fs, cfgPath)
	if err != nil {
		return err
	}

	changed := false
	for i := range cfg.Watch.Targets {
		if cfg.Watch.Targets[i].Name == name && cfg.Watch.Targets[i].Enabled != enabled {
			cfg.Watch.Targets[i].Enabled = enabled
			changed = true
		}
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}

	if !changed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no change (target %q already %s or not found)\n", name, verb)
		return nil
	}

	if err := config.Save(fs, cfgPath, cfg); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb, name)
	return nil
}

func completeTargetNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if cfgPath == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.LoadFile(fs, cfgPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	out := make([]string, 0, len(cfg.Watch.Targets))
	for _, t := range cfg.Watch.Targets {
		if t.Name != "" && strings.HasPrefix(t.Name, toComplete) {
			out = append(out, t.Name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
