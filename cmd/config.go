package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/voicecapture/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage VoiceCapture preferences.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configFormatCmd = &cobra.Command{
	Use:   "format [name]",
	Short: "Show or set the output format",
	Long: `With no argument, list the available output formats and mark the
current one. With an argument, set and persist the output format.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formats := config.Formats()

		if len(args) == 0 {
			for _, f := range formats {
				marker := " "
				if f == cfg.Output.Format {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, f)
			}
			return nil
		}

		name := args[0]
		index := -1
		for i, f := range formats {
			if f == name {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(formats, ", "))
		}

		// Partial update so unrelated keys in the file stay untouched.
		if err := config.UpdateOutputFormat(cfgFile, name, index); err != nil {
			return err
		}
		cfg.Output.Format = name
		cfg.Output.LastTypeIndex = index
		fmt.Printf("Output format set to %s\n", name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configFormatCmd)
}
