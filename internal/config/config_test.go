package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output.Format != "amr" {
		t.Errorf("Expected default format 'amr', got %s", cfg.Output.Format)
	}
	if cfg.Storage.Reserve.Mode != ReserveAuto {
		t.Errorf("Expected default reserve mode '%s', got %s", ReserveAuto, cfg.Storage.Reserve.Mode)
	}
	if cfg.Display.CountdownThreshold != 600 {
		t.Errorf("Expected default countdown threshold 600, got %d", cfg.Display.CountdownThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}

	// Default must be a copy, not a shared pointer
	cfg.Output.Format = "wav"
	if Default().Output.Format != "amr" {
		t.Error("Mutating a Default() copy must not affect later calls")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Missing config file should not be an error, got: %v", err)
	}
	if cfg.Output.Format != "amr" {
		t.Errorf("Expected defaults for missing file, got format %s", cfg.Output.Format)
	}
}

func TestLoad_NoFileSpecified(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Expected error when no config file is specified")
	}
}

func TestLoad_ReadsValues(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "voicecapture.yaml")

	content := `storage:
  path: /tmp/recordings
  removable: true
  reserve:
    mode: percent
    blocks: 4
    percent: 2.5
output:
  format: amr-wb
  max_file_size: 1000000
  source_type: mic
  sample_rate: 16000
display:
  countdown_threshold: 300
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Path != "/tmp/recordings" {
		t.Errorf("storage.path: got %s", cfg.Storage.Path)
	}
	if !cfg.Storage.Removable {
		t.Error("storage.removable: expected true")
	}
	if cfg.Storage.Reserve.Mode != ReservePercent {
		t.Errorf("reserve.mode: got %s", cfg.Storage.Reserve.Mode)
	}
	if cfg.Storage.Reserve.Percent != 2.5 {
		t.Errorf("reserve.percent: got %.1f", cfg.Storage.Reserve.Percent)
	}
	if cfg.Output.Format != "amr-wb" {
		t.Errorf("output.format: got %s", cfg.Output.Format)
	}
	if cfg.Output.MaxFileSize != 1000000 {
		t.Errorf("output.max_file_size: got %d", cfg.Output.MaxFileSize)
	}
	if cfg.Display.CountdownThreshold != 300 {
		t.Errorf("display.countdown_threshold: got %d", cfg.Display.CountdownThreshold)
	}
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "voicecapture.yaml")

	cfg := Default()
	cfg.Storage.Path = "/tmp/vc-test"
	cfg.Output.Format = "3gpp"
	cfg.Output.MaxFileSize = 500000
	cfg.Output.LastTypeIndex = 4

	if err := cfg.Save(configFile); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(configFile)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if loaded.Storage.Path != "/tmp/vc-test" {
		t.Errorf("Reloaded storage.path: got %s", loaded.Storage.Path)
	}
	if loaded.Output.Format != "3gpp" {
		t.Errorf("Reloaded output.format: got %s", loaded.Output.Format)
	}
	if loaded.Output.MaxFileSize != 500000 {
		t.Errorf("Reloaded output.max_file_size: got %d", loaded.Output.MaxFileSize)
	}
	if loaded.Output.LastTypeIndex != 4 {
		t.Errorf("Reloaded output.last_type_index: got %d", loaded.Output.LastTypeIndex)
	}
}

func TestUpdateOutputFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "voicecapture.yaml")

	cfg := Default()
	cfg.Output.MaxFileSize = 123456
	cfg.Storage.Reserve.Percent = 7.5
	if err := cfg.Save(configFile); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := UpdateOutputFormat(configFile, "evrc", 2); err != nil {
		t.Fatalf("UpdateOutputFormat failed: %v", err)
	}

	loaded, err := Load(configFile)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if loaded.Output.Format != "evrc" {
		t.Errorf("output.format: got %s, want evrc", loaded.Output.Format)
	}
	if loaded.Output.LastTypeIndex != 2 {
		t.Errorf("last_type_index: got %d, want 2", loaded.Output.LastTypeIndex)
	}
	// Unrelated keys must survive the partial update
	if loaded.Output.MaxFileSize != 123456 {
		t.Errorf("output.max_file_size clobbered by partial update: got %d", loaded.Output.MaxFileSize)
	}
	if loaded.Storage.Reserve.Percent != 7.5 {
		t.Errorf("storage.reserve.percent clobbered by partial update: got %.1f", loaded.Storage.Reserve.Percent)
	}
}

func TestUpdateOutputFormat_RejectsUnknown(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "voicecapture.yaml")
	if err := UpdateOutputFormat(configFile, "opus", 0); err == nil {
		t.Error("unknown format should be rejected")
	}
	if err := UpdateOutputFormat(configFile, "amr", 99); err == nil {
		t.Error("out-of-range index should be rejected")
	}
}

func TestFormats_ReturnsCopy(t *testing.T) {
	formats := Formats()
	if len(formats) == 0 {
		t.Fatal("Formats() returned empty list")
	}
	formats[0] = "mangled"
	if Formats()[0] == "mangled" {
		t.Error("Formats() must return a copy")
	}
}
