package main

import (
	"os"
	"path/filepath"
	"testing"

	"mediaconv/internal/testsupport"
)

func TestStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "queue", "add", "/videos/a.mov"); err != nil {
		t.Fatalf("queue add: %v", err)
	}
	kept := filepath.Join(env.cfg.Paths.StagingDir, "job-1")
	orphan := filepath.Join(env.cfg.Paths.StagingDir, "job-42")
	if err := os.MkdirAll(kept, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	testsupport.WriteStagedInput(t, orphan, 0, 2048)

	out, _, err := runCLI(t, env, "staging", "list")
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "job-1")
	requireContains(t, out, "job-42")
	requireContains(t, out, "Total: 2 directories")

	out, _, err = runCLI(t, env, "staging", "clean")
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed 1 directories")
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphan removed, stat err=%v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("expected job-1 kept: %v", err)
	}
}
