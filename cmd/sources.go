package cmd

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/audiolibrelab/mixcapture/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long: `List every device that can be recorded: system outputs (captured through
loopback) and microphones. Use the printed ids with 'record --source' or
'config select'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recorder, err := audio.NewRecorder(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize audio backend: %w", err)
		}
		defer recorder.Close()

		printSources(recorder.ListSources(), cfg.Sources)
		return nil
	},
}

// printSources lists sources grouped by type, marking defaults and the
// persisted selection.
func printSources(sources []audio.AudioSource, selected []string) {
	fmt.Printf("🎵 Audio Sources (%s)\n", runtime.GOOS)
	fmt.Printf("═══════════════════════════════════════\n\n")

	groups := []struct {
		title string
		typ   audio.SourceType
	}{
		{"SYSTEM OUTPUTS", audio.SourceSystemOutput},
		{"MICROPHONES", audio.SourceMicrophone},
	}

	for _, group := range groups {
		var matching []audio.AudioSource
		for _, src := range sources {
			if src.Type == group.typ {
				matching = append(matching, src)
			}
		}

		fmt.Printf("📋 %s (%d found):\n", group.title, len(matching))
		for i, src := range matching {
			var marks string
			if src.IsDefault {
				marks += " [default]"
			}
			if slices.Contains(selected, src.ID) {
				marks += " [selected]"
			}
			fmt.Printf("  %d. %s%s\n     id: %s\n", i+1, src.DisplayName(), marks, src.ID)
		}
		fmt.Println()
	}

	fmt.Printf("💡 Usage:\n")
	fmt.Printf("  • Record now:        mixcapture record --source <id> --source <id>\n")
	fmt.Printf("  • Save a selection:  mixcapture config select <id>...\n")
	fmt.Printf("  • Without a selection the default output and microphone are recorded\n\n")
}
