package router

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/strelka-bio/strelka/internal/domain"
)

// mirbaseRoute — классификатор объединённой post-processing задачи.
var mirbaseRoute = &domain.RouteSpec{
	Rules: []domain.RouteRule{
		{Marker: "mature", Subdir: "miRBase_mature"},
		{Marker: "hairpin", Subdir: "miRBase_hairpin"},
	},
}

func TestDestination_Classifier(t *testing.T) {
	r := New("/results")
	task := &domain.TaskDef{Name: "sam_post", Route: mirbaseRoute}

	cases := map[string]string{
		"sample1_mature.sorted.bam":  "/results/miRBase_mature/sample1_mature.sorted.bam",
		"sample1_hairpin.sorted.bam": "/results/miRBase_hairpin/sample1_hairpin.sorted.bam",
	}
	for artifact, want := range cases {
		got, err := r.Destination(task, artifact)
		if err != nil {
			t.Fatalf("Destination(%q): %v", artifact, err)
		}
		if got != want {
			t.Errorf("Destination(%q) = %q, want %q", artifact, got, want)
		}
	}
}

func TestDestination_Unroutable(t *testing.T) {
	r := New("/results")
	task := &domain.TaskDef{Name: "sam_post", Route: mirbaseRoute}

	_, err := r.Destination(task, "sample1_genome.sorted.bam")
	if !errors.Is(err, ErrUnroutableArtifact) {
		t.Fatalf("expected ErrUnroutableArtifact, got %v", err)
	}
}

func TestDestination_StaticSubdir(t *testing.T) {
	r := New("/results")
	task := &domain.TaskDef{
		Name:  "trimgalore",
		Route: &domain.RouteSpec{Subdir: "trimmed"},
	}

	got, err := r.Destination(task, "/work/sample1_trimmed.fq.gz")
	if err != nil {
		t.Fatalf("Destination: %v", err)
	}
	if got != "/results/trimmed/sample1_trimmed.fq.gz" {
		t.Errorf("unexpected destination %q", got)
	}
}

func TestDestination_DefaultsToTaskName(t *testing.T) {
	r := New("/results")
	task := &domain.TaskDef{Name: "fastqc"}

	got, err := r.Destination(task, "sample1_fastqc.html")
	if err != nil {
		t.Fatalf("Destination: %v", err)
	}
	if got != "/results/fastqc/sample1_fastqc.html" {
		t.Errorf("unexpected destination %q", got)
	}
}

func TestPublish_MovesArtifact(t *testing.T) {
	outDir := t.TempDir()
	workDir := t.TempDir()

	src := filepath.Join(workDir, "sample1_mature.bam")
	if err := os.WriteFile(src, []byte("bam"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(outDir)
	task := &domain.TaskDef{Name: "sam_post", Route: mirbaseRoute}

	dest, err := r.Publish(task, src)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("published artifact missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source artifact must be moved, not copied")
	}
}
