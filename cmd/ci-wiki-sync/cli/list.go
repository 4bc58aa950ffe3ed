package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davarch/ci-wiki-sync/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	listOnlyEnabled  bool
	listOnlyDisabled bool
	listJSON         bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List watch targets from the config file",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if listOnlyEnabled && listOnlyDisabled {
			return fmt.Errorf("flags --enabled and --disabled are mutually exclusive")
		}
		return requireConfigPath()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(fs, cfgPath)
		if err != nil {
			return err
		}

		items := make([]config.Target, 0, len(cfg.Watch.Targets))
		for _, t := range cfg.Watch.Targets {
			if listOnlyEnabled && !t.Enabled {
				continue
			}
			if listOnlyDisabled && t.Enabled {
				continue
			}
			items = append(items, t)
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tPROJECT_ID\tREF\tPAGE_ID\tSECTION\tENABLED")
		for _, t := range items {
			name := t.Name
			if name == "" {
				name = "(unnamed)"
			}
			sec := t.Section
			if sec == "" {
				sec = "(pipeline name)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", name, t.ProjectID, t.Ref, t.PageID, sec, t.Enabled)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().BoolVar(&listOnlyEnabled, "enabled", false, "show only enabled targets")
	listCmd.Flags().BoolVar(&listOnlyDisabled, "disabled", false, "show only disabled targets")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	rootCmd.AddCommand(listCmd)
}
