package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/audiolibrelab/mixcapture/internal/catalog"

	"github.com/spf13/cobra"
)

var recordingsLimit int

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List finished recordings",
	Long:  `List the recordings kept in the catalog, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := catalog.New(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("failed to open recording catalog: %w", err)
		}
		defer store.Close()

		recordings, err := store.List(cmd.Context(), recordingsLimit)
		if err != nil {
			return err
		}

		printRecordings(recordings)
		return nil
	},
}

func printRecordings(recordings []catalog.Recording) {
	if len(recordings) == 0 {
		fmt.Println("No recordings yet. Start one with 'mixcapture record'.")
		return
	}

	fmt.Printf("🎧 Recordings (%d)\n", len(recordings))
	fmt.Printf("═══════════════════════════════════════\n\n")
	for _, rec := range recordings {
		status := "✅"
		if rec.Error != "" {
			status = "⚠️ "
		}
		fmt.Printf("%s %s\n", status, rec.Path)
		fmt.Printf("   %s · %s · %s · %d source(s) · profile %s\n",
			humanize.Time(rec.StartedAt),
			rec.Duration.Truncate(time.Second),
			humanize.Bytes(uint64(rec.SizeBytes)),
			len(rec.Sources),
			rec.Profile)
		if rec.Error != "" {
			fmt.Printf("   error: %s\n", rec.Error)
		}
	}
}

func init() {
	recordingsCmd.Flags().IntVarP(&recordingsLimit, "limit", "n", 20, "maximum number of recordings to list")
}
