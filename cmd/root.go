package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/catalog"
	"github.com/audiolibrelab/voicecapture/internal/config"
	"github.com/audiolibrelab/voicecapture/internal/session"
	"github.com/audiolibrelab/voicecapture/internal/storage"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "voicecapture",
	Short: "Voice recorder with remaining-time awareness",
	Long: `VoiceCapture records voice memos in speech codecs (AMR, AMR-WB, 3GPP
and others), tracks how much recording time is left on the target volume,
and indexes accepted recordings in a local catalog.

Recording stops automatically when disk space or a configured file-size
limit runs out.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/voicecapture.yaml")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicecapture.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=engine output")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}

// engineLogWriter returns where raw engine output goes: stderr at verbose
// level 2 and above, discarded otherwise.
func engineLogWriter() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return io.Discard
}

// buildSession wires the controller with the real engine, volume and
// catalog for the configured storage path.
func buildSession() (*session.Controller, *storage.Volume, catalog.Catalog) {
	engine := audio.NewEngine(engineLogWriter())
	volume := storage.NewVolume(cfg.Storage.Path, cfg.Storage.Removable, nil)
	cat := catalog.NewFileCatalog(cfg.Storage.Path)
	return session.NewController(cfg, engine, volume, cat), volume, cat
}

// snapshotPath is where the pending (recorded but not yet accepted)
// session is parked between invocations.
func snapshotPath() string {
	return filepath.Join(cfg.Storage.Path, ".session.yaml")
}
