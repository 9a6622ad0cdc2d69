package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/audiolibrelab/mixcapture/internal/audio"
	"github.com/audiolibrelab/mixcapture/internal/service"

	"github.com/spf13/cobra"
)

var (
	recordSources  []string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the selected sources into one mixed WAV file",
	Long: `Record every selected source at once and mix them into a single WAV file
in the output directory.

Sources come from --source, then from the profile's saved selection, then
from the default system output and default microphone.

Press Enter to pause or resume, Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("Record command started", "sources", recordSources, "duration", recordDuration)

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		return runRecording(cmd.Context(), svc)
	},
}

func runRecording(ctx context.Context, svc service.Service) error {
	// Subscribe before starting so the first transition is not missed
	events, cancel := svc.Subscribe(8)
	defer cancel()

	session, err := svc.StartRecording(ctx, recordSources)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	fmt.Printf("🔴 Recording to %s\n", session.OutputFile)
	for _, src := range session.Sources {
		fmt.Printf("   %s\n", src.DisplayName())
	}
	fmt.Printf("Press Enter to pause/resume, Ctrl+C to stop\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var limit <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		limit = timer.C
	}

	toggles := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go readToggles(os.Stdin, toggles, done)

loop:
	for {
		select {
		case <-sigChan:
			slog.Info("Stopping recording...")
			break loop

		case <-limit:
			slog.Info("Recording duration reached", "duration", recordDuration)
			break loop

		case <-toggles:
			if err := togglePause(svc); err != nil {
				slog.Warn("Pause toggle failed", "error", err)
			}

		case info, ok := <-events:
			if !ok {
				break loop
			}
			printProgress(info)
			if info.State == audio.StateStopped {
				// The engine ended the session on its own
				break loop
			}
		}
	}

	if err := svc.StopRecording(); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}

	info, _ := svc.GetRecordingStatus()
	fmt.Printf("\n⏹  Saved %s (%s, %s)\n", session.OutputFile,
		info.Duration.Truncate(time.Millisecond), humanize.Bytes(uint64(info.FileSizeBytes)))

	if lastError := svc.GetLastError(); lastError != "" {
		return fmt.Errorf("%s", lastError)
	}
	return nil
}

// readToggles signals once per line read from r until done is closed
func readToggles(r io.Reader, toggles chan<- struct{}, done <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case toggles <- struct{}{}:
		case <-done:
			return
		}
	}
}

// togglePause pauses or resumes based on the engine's state at the time of
// the keypress, not on the last snapshot printed.
func togglePause(svc service.Service) error {
	info, _ := svc.GetRecordingStatus()
	switch info.State {
	case audio.StatePaused:
		return svc.ResumeRecording()
	case audio.StateRecording:
		return svc.PauseRecording()
	default:
		return nil
	}
}

func printProgress(info audio.RecordingInfo) {
	icon := "🔴"
	if info.State == audio.StatePaused {
		icon = "⏸ "
	}
	fmt.Printf("\r%s %-9s %10s %10s", icon, info.State,
		info.Duration.Truncate(time.Second), humanize.Bytes(uint64(info.FileSizeBytes)))
}

func init() {
	recordCmd.Flags().StringArrayVarP(&recordSources, "source", "s", nil, "source id to record (repeatable, see 'mixcapture sources')")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop automatically after this long (e.g. 90s, 1h)")
}
