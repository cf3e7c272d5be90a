package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server for remote control",
	Long: `Start the VoiceCapture API server so the session can be driven from
another process or device: record, pause, accept and discard map to POST
endpoints, and /api/status reports progress and the remaining-time
countdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		controller, volume, cat := buildSession()
		defer controller.Close()

		srv := server.New(controller, cfg, volume, cat, port)
		slog.Info("VoiceCapture API server starting", "port", port, "storage", cfg.Storage.Path)

		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the API server")
}
