package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/session"
)

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Play back a recording",
	Long: `Play a recording file, or the pending (not yet accepted) recording
when no file is given. Ctrl+C stops playback early.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, _, _ := buildSession()
		defer controller.Close()

		if len(args) == 1 {
			controller.Recorder().Restore(session.Snapshot{
				SamplePath:     args[0],
				SampleLengthMS: 1,
			})
		} else {
			snap, err := session.LoadSnapshot(snapshotPath())
			if err != nil {
				return err
			}
			if snap.SamplePath == "" {
				return fmt.Errorf("no pending recording; pass a file to play")
			}
			controller.Recorder().Restore(snap)
		}

		done := make(chan struct{}, 1)
		controller.OnUpdate(func(st session.Status) {
			if st.State == session.StateIdle {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		})

		if err := controller.Play(); err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-done:
		case <-sigChan:
			return controller.Stop()
		}
		return nil
	},
}
