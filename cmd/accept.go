package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/session"
)

// restorePending loads the parked session snapshot into a fresh
// controller.
func restorePending(controller *session.Controller) error {
	snap, err := session.LoadSnapshot(snapshotPath())
	if err != nil {
		return err
	}
	if snap.SamplePath == "" {
		return fmt.Errorf("no pending recording")
	}
	controller.Recorder().Restore(snap)
	if !controller.Recorder().HasSample() {
		return fmt.Errorf("pending recording %s no longer exists", snap.SamplePath)
	}
	return nil
}

func clearPending() {
	if err := os.Remove(snapshotPath()); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to remove session snapshot: %v\n", err)
	}
}

var acceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Catalog the pending recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, _, _ := buildSession()
		defer controller.Close()

		if err := restorePending(controller); err != nil {
			return err
		}

		result, err := controller.Accept()
		if err != nil {
			return err
		}
		clearPending()
		fmt.Println(result.URI)
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete the pending recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, _, _ := buildSession()
		defer controller.Close()

		if err := restorePending(controller); err != nil {
			return err
		}

		if err := controller.Discard(); err != nil {
			return err
		}
		clearPending()
		fmt.Println("Pending recording discarded")
		return nil
	},
}
