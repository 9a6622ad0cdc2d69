package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/mixcapture/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage MixCapture configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Set the active configuration profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		// Resolve first so a broken profile is never made active
		if _, err := config.LoadWithProfile(cfgFile, name); err != nil {
			return err
		}
		if err := config.UpdateActiveConfig(cfgFile, name); err != nil {
			return err
		}

		fmt.Printf("✅ Active profile set to '%s'\n", name)
		return nil
	},
}

var configSelectCmd = &cobra.Command{
	Use:   "select <source-id>...",
	Short: "Save the sources to record by default",
	Long: `Save the given source ids as the selection of the active profile (or
--profile). 'mixcapture record' without --source records this selection.
Run 'mixcapture sources' to list ids.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveSelectedSources(cfgFile, cfg.Profile, args); err != nil {
			return err
		}

		fmt.Printf("✅ Saved %d source(s) to profile '%s'\n", len(args), cfg.Profile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configSelectCmd)
}
