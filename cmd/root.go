package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/audiolibrelab/mixcapture/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int

	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "mixcapture",
	Short: "Record system audio and microphones into one mixed WAV file",
	Long: `MixCapture records any number of audio sources at once (system output
loopback and microphones), mixes them live and writes a single
48 kHz / 16-bit / stereo WAV file.

Run 'mixcapture sources' to list devices, then 'mixcapture record' to start.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/mixcapture.yaml")
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logFile, err = setupLogging(verboseLevel, cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}

		slog.Debug("Configuration loaded", "config", cfgFile, "profile", cfg.Profile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mixcapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().CountVarP(&verboseLevel, "verbose", "v", "increase verbosity (-v enables debug logs)")

	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog from the log section and the verbose count.
// With a log file set, records go to that file as JSON. The returned file,
// if any, must be closed by the caller.
func setupLogging(verbose int, logCfg config.LogConfig) (*os.File, error) {
	level := strings.ToLower(logCfg.Level)
	if verbose >= 1 {
		level = "debug"
	}

	opts := &slog.HandlerOptions{}
	switch level {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		opts.Level = slog.LevelError
	case "warn":
		opts.Level = slog.LevelWarn
	case "", "info":
		opts.Level = slog.LevelInfo
	case "debug":
		opts.Level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("unexpected log level: %s", logCfg.Level)
	}

	if logCfg.File != "" {
		f, err := os.OpenFile(logCfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", logCfg.File, err)
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(f, opts)))
		return f, nil
	}

	var handler slog.Handler
	if strings.ToLower(logCfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil, nil
}
