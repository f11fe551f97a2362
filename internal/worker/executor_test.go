package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestProcessExecutor_Success(t *testing.T) {
	workDir := t.TempDir()
	e := &ProcessExecutor{}

	res, err := e.Execute(context.Background(), &Request{
		Task:           "trim",
		Argv:           []string{"sh", "-c", "echo trimmed > sample1_trimmed.fq && echo done"},
		WorkDir:        workDir,
		OutputPatterns: []string{"*_trimmed.fq"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if string(res.Stdout) != "done\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if len(res.Artifacts) != 1 || filepath.Base(res.Artifacts[0]) != "sample1_trimmed.fq" {
		t.Errorf("artifacts = %v", res.Artifacts)
	}
}

func TestProcessExecutor_NonZeroExit(t *testing.T) {
	e := &ProcessExecutor{}

	res, err := e.Execute(context.Background(), &Request{
		Task:    "align",
		Argv:    []string{"sh", "-c", "echo boom >&2; exit 3"},
		WorkDir: t.TempDir(),
	})
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if len(res.Stderr) == 0 {
		t.Error("stderr must be captured")
	}
}

func TestProcessExecutor_MissingArtifacts(t *testing.T) {
	e := &ProcessExecutor{}

	_, err := e.Execute(context.Background(), &Request{
		Task:           "align",
		Argv:           []string{"true"},
		WorkDir:        t.TempDir(),
		OutputPatterns: []string{"*.bam"},
	})
	if !errors.Is(err, ErrNoArtifacts) {
		t.Fatalf("expected ErrNoArtifacts, got %v", err)
	}
}

func TestProcessExecutor_EmptyCommand(t *testing.T) {
	e := &ProcessExecutor{}

	_, err := e.Execute(context.Background(), &Request{Task: "noop"})
	if !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestHarvest_Dedup(t *testing.T) {
	workDir := t.TempDir()
	for _, name := range []string{"a_mature.bam", "a_hairpin.bam", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(workDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	artifacts, err := Harvest(workDir, []string{"*.bam", "*_mature.bam"})
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %v", artifacts)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("process"); err != nil {
		t.Errorf("process executor must be registered: %v", err)
	}
	if _, err := r.Get("container"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}
