package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultConfigWhenNoFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Redo.Capacity == 0 {
		t.Errorf("expected a non-zero default redo capacity")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
logging:
  level: "DEBUG"
  format: "json"
  output: "stderr"

heap:
  path: "` + filepath.ToSlash(tmpDir) + `/heap.pm"
  size: 256Mi

redo:
  capacity: 16

metrics:
  enabled: true
  port: 9191
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Heap.Size != 256*1024*1024 {
		t.Errorf("expected heap size 256Mi, got %d", cfg.Heap.Size)
	}
	if cfg.Redo.Capacity != 16 {
		t.Errorf("expected redo capacity 16, got %d", cfg.Redo.Capacity)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9191 {
		t.Errorf("expected metrics enabled on port 9191, got %+v", cfg.Metrics)
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"
	if err := Validate(cfg); err == nil {
		t.Error("expected validation to reject an unknown log level")
	}
}

func TestValidate_RejectsMissingHeapPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Heap.Path = ""
	if err := Validate(cfg); err == nil {
		t.Error("expected validation to reject an empty heap path")
	}
}

func TestSaveConfig_RoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Heap.Path = filepath.Join(tmpDir, "heap.pm")

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Heap.Path != cfg.Heap.Path {
		t.Errorf("expected heap path %q, got %q", cfg.Heap.Path, reloaded.Heap.Path)
	}
}
