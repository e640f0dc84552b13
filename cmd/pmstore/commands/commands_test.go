package commands

import (
	"bytes"
	"path/filepath"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := GetRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_InitStatsCheckRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	heapPath := filepath.Join(tmpDir, "heap.pm")

	if _, err := runCLI(t, "init", "--config", configPath, "--size", "64Mi", "--heap-path", heapPath); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := runCLI(t, "stats", "--config", configPath); err != nil {
		t.Fatalf("stats: %v", err)
	}

	if _, err := runCLI(t, "check", "--config", configPath); err != nil {
		t.Fatalf("check: %v", err)
	}

	if _, err := runCLI(t, "archive", "--config", configPath, "--prefix", "test"); err != nil {
		t.Fatalf("archive: %v", err)
	}
}

func TestCLI_VersionPrintsWithoutError(t *testing.T) {
	if _, err := runCLI(t, "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
}
