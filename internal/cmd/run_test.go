package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCommandRejectsMissingProviders(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	cmd := NewRunCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", configPath})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected an error for a config with no providers and no project_path")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("error = %v, want it to mention invalid configuration", err)
	}
}

func TestRunCommandParsesCheckpointFlag(t *testing.T) {
	cmd := NewRunCommand()
	if err := cmd.ParseFlags([]string{"--checkpoint", "somefile.json"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	checkpointPath, _ := cmd.Flags().GetString("checkpoint")
	if checkpointPath != "somefile.json" {
		t.Fatalf("checkpoint = %q, want somefile.json", checkpointPath)
	}
}
