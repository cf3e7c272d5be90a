package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/voicecapture/internal/storage"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Show storage volume state",
	Long: `Show the recording volume's mount state, free space, and how much
of it the reserve policy keeps untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		volume := storage.NewVolume(cfg.Storage.Path, cfg.Storage.Removable, nil)
		policy := storage.PolicyFromConfig(cfg.Storage.Reserve)

		out, err := yaml.Marshal(volume.Describe(policy))
		if err != nil {
			return fmt.Errorf("error marshaling volume report: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}
