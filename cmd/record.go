package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/session"
)

var (
	recordMIME    string
	recordMaxSize int64
	recordKeep    bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice memo",
	Long: `Record from the microphone in the configured output format until
interrupted. Press Ctrl+C to stop; SIGUSR1 toggles pause/resume.

The finished recording is added to the catalog unless --keep is given,
in which case it is parked for a later 'accept' or 'discard'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordMaxSize > 0 {
			cfg.Output.MaxFileSize = recordMaxSize
		}

		controller, _, _ := buildSession()
		defer controller.Close()

		controller.OnUpdate(func(st session.Status) {
			if st.CountdownVisible {
				fmt.Fprintf(os.Stderr, "\r%s  (%ds left, %s limit)   ",
					session.FormatDuration(st.Progress), st.Remaining, st.Limit)
			} else if st.State == session.StateRecording {
				fmt.Fprintf(os.Stderr, "\r%s   ", session.FormatDuration(st.Progress))
			}
		})

		var err error
		if recordMIME != "" {
			err = controller.RecordMIME(recordMIME)
		} else {
			err = controller.Record()
		}
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		slog.Info("Recording... Ctrl+C stops, SIGUSR1 toggles pause")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	loop:
		for sig := range sigChan {
			switch sig {
			case syscall.SIGUSR1:
				if controller.Status().State == session.StatePaused {
					if err := controller.Resume(); err != nil {
						slog.Error("Resume failed", "error", err)
					}
				} else {
					if err := controller.Pause(); err != nil {
						slog.Error("Pause failed", "error", err)
					}
				}
			case syscall.SIGTERM:
				controller.HandleInterrupt(session.InterruptShutdown)
				break loop
			default:
				break loop
			}
		}
		fmt.Fprintln(os.Stderr)

		if err := controller.Stop(); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		status := controller.Status()
		slog.Info("Recording finished",
			"file", status.SamplePath,
			"length", session.FormatDuration(status.SampleLength))

		if recordKeep {
			if err := session.SaveSnapshot(snapshotPath(), controller.Recorder().Snapshot()); err != nil {
				return err
			}
			fmt.Printf("Recording kept at %s; run 'voicecapture accept' or 'voicecapture discard'\n", status.SamplePath)
			return nil
		}

		result, err := controller.Accept()
		if err != nil {
			// The file survives a catalog failure; park it instead.
			if snapErr := session.SaveSnapshot(snapshotPath(), controller.Recorder().Snapshot()); snapErr != nil {
				slog.Warn("Failed to save session snapshot", "error", snapErr)
			}
			return fmt.Errorf("recording kept at %s but not cataloged: %w", status.SamplePath, err)
		}
		fmt.Println(result.URI)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordMIME, "mime", "", "requested MIME type (e.g. audio/amr); overrides the configured format")
	recordCmd.Flags().Int64Var(&recordMaxSize, "max-size", 0, "stop automatically when the file reaches this many bytes")
	recordCmd.Flags().BoolVar(&recordKeep, "keep", false, "do not catalog the recording yet; keep it for accept/discard")
}
