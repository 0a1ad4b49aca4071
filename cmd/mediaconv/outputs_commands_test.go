package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediaconv/internal/outputs"
)

func TestOutputsPlanDisambiguatesAgainstFolder(t *testing.T) {
	env := setupCLITestEnv(t)
	folder := t.TempDir()
	if err := os.WriteFile(filepath.Join(folder, "clip.mp4"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, _, err := runCLI(t, env, "outputs", "plan", "--folder", folder, "clip.mp4", "clip.mp4", "poster.jpg")
	if err != nil {
		t.Fatalf("outputs plan: %v", err)
	}
	requireContains(t, out, "Folder: "+folder)
	requireContains(t, out, "clip (1).mp4")
	requireContains(t, out, "clip (2).mp4")
	requireContains(t, out, "poster.jpg")
}

func TestOutputsPlanRenameConflict(t *testing.T) {
	env := setupCLITestEnv(t)
	folder := t.TempDir()
	if err := os.WriteFile(filepath.Join(folder, "taken.mp4"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err := runCLI(t, env, "outputs", "plan", "--folder", folder, "--rename", "0=taken.mp4", "clip.mp4")
	if !errors.Is(err, outputs.ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}

	out, _, err := runCLI(t, env, "outputs", "plan", "--folder", folder, "--rename", "0=final.mp4", "clip.mp4")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	requireContains(t, out, "final.mp4")
}

func TestOutputsPlanMissingFolderFallsBack(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "outputs", "plan", "--folder", filepath.Join(t.TempDir(), "missing"), "clip.mp4")
	if err != nil {
		t.Fatalf("outputs plan: %v", err)
	}
	requireContains(t, out, "Folder: "+env.cfg.Paths.OutputDir)
}

func TestOutputsJob(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "queue", "add", "/videos/a.mov", "-o", "clip.mp4"); err != nil {
		t.Fatalf("queue add: %v", err)
	}
	out, _, err := runCLI(t, env, "outputs", "job", "1")
	if err != nil {
		t.Fatalf("outputs job: %v", err)
	}
	requireContains(t, out, filepath.Join(env.cfg.Paths.OutputDir, "clip.mp4"))
}

func TestParseRename(t *testing.T) {
	index, name, err := parseRename("2= final.mp4")
	if err != nil || index != 2 || name != "final.mp4" {
		t.Fatalf("got %d %q %v", index, name, err)
	}
	for _, bad := range []string{"final.mp4", "x=final.mp4", "1="} {
		if _, _, err := parseRename(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
