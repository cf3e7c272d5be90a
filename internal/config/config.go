package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Reserve policy modes for deciding how much free space must stay untouched
// on the recording volume.
const (
	ReserveFixedBlocks = "fixed-blocks"
	ReservePercent     = "percent"
	ReserveAuto        = "auto"
)

// Config holds the process-wide preferences: where recordings go, what
// format is requested, and how the remaining-time countdown behaves.
// Loaded at start, saved on change; only ever touched from the controller.
type Config struct {
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

type StorageConfig struct {
	Path      string        `mapstructure:"path" yaml:"path"`
	Removable bool          `mapstructure:"removable" yaml:"removable"`
	Reserve   ReserveConfig `mapstructure:"reserve" yaml:"reserve"`
}

// ReserveConfig selects the free-space margin rule. Device builds disagreed
// on this (one block vs. a percentage vs. removable-media rules), so it is
// a policy parameter rather than a constant.
type ReserveConfig struct {
	Mode    string  `mapstructure:"mode" yaml:"mode"`
	Blocks  int64   `mapstructure:"blocks" yaml:"blocks"`
	Percent float64 `mapstructure:"percent" yaml:"percent"`
}

type OutputConfig struct {
	Format        string `mapstructure:"format" yaml:"format"`
	MaxFileSize   int64  `mapstructure:"max_file_size" yaml:"max_file_size"`
	LastTypeIndex int    `mapstructure:"last_type_index" yaml:"last_type_index"`
	SourceType    string `mapstructure:"source_type" yaml:"source_type"`
	Channels      int    `mapstructure:"channels" yaml:"channels"`
	SampleRate    int    `mapstructure:"sample_rate" yaml:"sample_rate"`
}

type DisplayConfig struct {
	// Countdown is shown only once the remaining-time estimate drops
	// below this many seconds.
	CountdownThreshold int `mapstructure:"countdown_threshold" yaml:"countdown_threshold"`
}

// Known output formats. The engine resolves these to codec parameters;
// config only gatekeeps the spelling.
var knownFormats = []string{"amr", "amr-wb", "evrc", "qcelp", "3gpp", "aac", "wav"}

// Known capture source types.
var knownSources = []string{"mic", "voice-uplink", "voice-downlink", "voice-call"}

var defaultConfig = Config{
	Storage: StorageConfig{
		Path:      filepath.Join(os.Getenv("HOME"), "Audio", "VoiceCapture"),
		Removable: false,
		Reserve: ReserveConfig{
			Mode:    ReserveAuto,
			Blocks:  1,
			Percent: 1.0,
		},
	},
	Output: OutputConfig{
		Format:     "amr",
		SourceType: "mic",
		SampleRate: 8000,
	},
	Display: DisplayConfig{
		CountdownThreshold: 600,
	},
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the preference file, layering it over the defaults. A missing
// file is not an error: the defaults are returned so a first run works
// without any setup.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("VOICECAPTURE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Storage.Path = expandPath(cfg.Storage.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Save writes the full preference set back to the config file.
func (c *Config) Save(configFile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	v.Set("storage.path", c.Storage.Path)
	v.Set("storage.removable", c.Storage.Removable)
	v.Set("storage.reserve.mode", c.Storage.Reserve.Mode)
	v.Set("storage.reserve.blocks", c.Storage.Reserve.Blocks)
	v.Set("storage.reserve.percent", c.Storage.Reserve.Percent)
	v.Set("output.format", c.Output.Format)
	v.Set("output.max_file_size", c.Output.MaxFileSize)
	v.Set("output.last_type_index", c.Output.LastTypeIndex)
	v.Set("output.source_type", c.Output.SourceType)
	v.Set("output.channels", c.Output.Channels)
	v.Set("output.sample_rate", c.Output.SampleRate)
	v.Set("display.countdown_threshold", c.Display.CountdownThreshold)

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// UpdateOutputFormat persists just the picked output format and its picker
// position. Uses a fresh viper instance to avoid clobbering unrelated keys.
func UpdateOutputFormat(configFile, format string, index int) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}
	if !isKnown(format, knownFormats) {
		return fmt.Errorf("output.format must be one of %s, got: %s",
			strings.Join(knownFormats, ", "), format)
	}
	if index < 0 || index >= len(knownFormats) {
		return fmt.Errorf("output.last_type_index out of range: %d", index)
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("output.format", format)
	v.Set("output.last_type_index", index)

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// Validate checks the preference values for internal consistency.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}

	switch c.Storage.Reserve.Mode {
	case ReserveFixedBlocks, ReservePercent, ReserveAuto:
	default:
		return fmt.Errorf("storage.reserve.mode must be one of '%s', '%s', '%s', got: %s",
			ReserveFixedBlocks, ReservePercent, ReserveAuto, c.Storage.Reserve.Mode)
	}

	if c.Storage.Reserve.Blocks < 1 {
		return fmt.Errorf("storage.reserve.blocks must be >= 1, got: %d", c.Storage.Reserve.Blocks)
	}
	if c.Storage.Reserve.Percent < 0 || c.Storage.Reserve.Percent > 50 {
		return fmt.Errorf("storage.reserve.percent must be between 0 and 50, got: %.1f", c.Storage.Reserve.Percent)
	}

	if !isKnown(c.Output.Format, knownFormats) {
		return fmt.Errorf("output.format must be one of %s, got: %s",
			strings.Join(knownFormats, ", "), c.Output.Format)
	}

	if c.Output.SourceType != "" && !isKnown(c.Output.SourceType, knownSources) {
		return fmt.Errorf("output.source_type must be one of %s, got: %s",
			strings.Join(knownSources, ", "), c.Output.SourceType)
	}

	if c.Output.MaxFileSize < 0 {
		return fmt.Errorf("output.max_file_size must be >= 0, got: %d", c.Output.MaxFileSize)
	}

	switch c.Output.Channels {
	case 0, 1, 2, 6:
	default:
		return fmt.Errorf("output.channels must be 0 (engine default), 1, 2 or 6, got: %d", c.Output.Channels)
	}

	if c.Output.SampleRate < 0 {
		return fmt.Errorf("output.sample_rate must be >= 0, got: %d", c.Output.SampleRate)
	}

	if c.Display.CountdownThreshold <= 0 {
		return fmt.Errorf("display.countdown_threshold must be > 0, got: %d", c.Display.CountdownThreshold)
	}

	if c.Output.LastTypeIndex < 0 || c.Output.LastTypeIndex >= len(knownFormats) {
		return fmt.Errorf("output.last_type_index out of range: %d", c.Output.LastTypeIndex)
	}

	return nil
}

// Formats returns the known output format names in picker order.
func Formats() []string {
	out := make([]string, len(knownFormats))
	copy(out, knownFormats)
	return out
}

func isKnown(value string, set []string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
