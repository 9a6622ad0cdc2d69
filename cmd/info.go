package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/mixcapture/internal/audio"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and the next output path",
	Long:  `Display the resolved configuration with inheritance indicators and the file name pattern of the next recording. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nextFile := filepath.Join(cfg.Output.Directory,
			fmt.Sprintf("%s_%s.wav", cfg.Output.FilePrefix, time.Now().Format("20060102_150405")))

		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("config: %s\n", cfgFile)
		fmt.Printf("next_recording: %s\n", nextFile)
		fmt.Printf("catalog: %s\n", cfg.Catalog.Path)

		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, getInheritanceIndicator(cfg.Inheritance.Audio.Backend))
		fmt.Printf("buffer_seconds: %d %s\n", cfg.Audio.BufferSeconds, getInheritanceIndicator(cfg.Inheritance.Audio.BufferSeconds))
		fmt.Printf("stop_timeout_ms: %d %s\n", cfg.Audio.StopTimeoutMs, getInheritanceIndicator(cfg.Inheritance.Audio.StopTimeout))
		fmt.Printf("available_backends: %v\n", audio.GetAvailableBackends())
		fmt.Printf("format: %d Hz / %d ch / %d-bit\n", audio.CanonicalSampleRate, audio.CanonicalChannels, audio.CanonicalBitDepth)

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(cfg.Inheritance.Output.Directory))
		fmt.Printf("file_prefix: %s %s\n", cfg.Output.FilePrefix, getInheritanceIndicator(cfg.Inheritance.Output.FilePrefix))

		fmt.Printf("\n[Sources]\n")
		if len(cfg.Sources) == 0 {
			fmt.Printf("selection: default output + default microphone %s\n", getInheritanceIndicator(cfg.Inheritance.Sources))
		} else {
			fmt.Printf("selection: %s %s\n", strings.Join(cfg.Sources, ", "), getInheritanceIndicator(cfg.Inheritance.Sources))
		}

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[built-in]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
