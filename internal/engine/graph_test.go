package engine

import (
	"errors"
	"testing"

	"github.com/strelka-bio/strelka/internal/domain"
)

func streamingIn(stream string) domain.InputBinding {
	return domain.InputBinding{Stream: stream, Mode: domain.BindStreaming}
}

func streamingOut(stream string) domain.OutputDecl {
	return domain.OutputDecl{Stream: stream}
}

func TestBuild_EdgesDerivedFromBindings(t *testing.T) {
	b := NewBuilder()
	b.Source("reads", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "trim",
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("trimmed")},
	})
	b.Register(&domain.TaskDef{
		Name:    "align",
		Inputs:  []domain.InputBinding{streamingIn("trimmed")},
		Outputs: []domain.OutputDecl{streamingOut("bam")},
	})
	b.Register(&domain.TaskDef{
		Name:   "qc",
		Inputs: []domain.InputBinding{streamingIn("reads")},
	})

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if g.Size() != 3 {
		t.Fatalf("expected 3 tasks, got %d", g.Size())
	}

	// align зависит от trim только потому, что подписан на его выход.
	align := g.Node("align")
	if len(align.DependsOn) != 1 || align.DependsOn[0].Task.Name != "trim" {
		t.Errorf("align should depend on trim, got %v", align.DependsOn)
	}

	// qc читает только источник — зависимостей нет.
	if got := g.Node("qc").InDegree; got != 0 {
		t.Errorf("qc InDegree = %d, want 0", got)
	}

	// Потоки созданы для источника и выходов.
	for _, name := range []string{"reads", "trimmed", "bam"} {
		if g.Stream(name) == nil {
			t.Errorf("stream %q missing from graph", name)
		}
	}
}

func TestBuild_PredicatePrunesBranch(t *testing.T) {
	build := func(genomePresent bool) *Graph {
		b := NewBuilder()
		b.Source("reads", KindStreaming)
		b.Register(&domain.TaskDef{
			Name:    "trim",
			Inputs:  []domain.InputBinding{streamingIn("reads")},
			Outputs: []domain.OutputDecl{streamingOut("trimmed")},
		})
		b.Register(&domain.TaskDef{
			Name:    "align_genome",
			When:    func() bool { return genomePresent },
			Inputs:  []domain.InputBinding{streamingIn("trimmed")},
			Outputs: []domain.OutputDecl{streamingOut("genome_bam")},
		})
		// Зависит только от выхода условной задачи — отсекается транзитивно.
		b.Register(&domain.TaskDef{
			Name:   "genome_stats",
			Inputs: []domain.InputBinding{streamingIn("genome_bam")},
		})

		g, err := b.Build()
		if err != nil {
			t.Fatalf("Build(genomePresent=%v): %v", genomePresent, err)
		}
		return g
	}

	with := build(true)
	for _, task := range []string{"trim", "align_genome", "genome_stats"} {
		if !with.HasTask(task) {
			t.Errorf("with genome: task %q missing", task)
		}
	}

	without := build(false)
	if !without.HasTask("trim") {
		t.Error("without genome: trim must survive")
	}
	for _, task := range []string{"align_genome", "genome_stats"} {
		if without.HasTask(task) {
			t.Errorf("without genome: task %q must be pruned", task)
		}
	}
	if without.Stream("genome_bam") != nil {
		t.Error("without genome: stream genome_bam must not exist")
	}
}

func TestBuild_OptionalFallbackForPrunedInput(t *testing.T) {
	b := NewBuilder()
	b.Source("reads", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "mirtrace",
		When:    func() bool { return false },
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("trace")},
	})
	b.Register(&domain.TaskDef{
		Name: "summary",
		Inputs: []domain.InputBinding{
			streamingIn("reads"),
			{Stream: "trace", Mode: domain.BindStreaming, Optional: true},
		},
	})

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Optional-привязка к отсечённой ветви получает пустой закрытый поток.
	trace := g.Stream("trace")
	if trace == nil || !trace.Closed() || trace.Len() != 0 {
		t.Fatal("optional fallback must be an empty closed stream")
	}
	if got := g.Node("summary").InDegree; got != 0 {
		t.Errorf("summary InDegree = %d, want 0", got)
	}
}

func TestBuild_UnsatisfiedDependency(t *testing.T) {
	b := NewBuilder()
	b.Source("reads", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "align_genome",
		When:    func() bool { return false },
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("genome_bam")},
	})
	// Обязательная привязка к отсечённому потоку плюс живой вход:
	// транзитивное отсечение не срабатывает, сборка обязана упасть.
	b.Register(&domain.TaskDef{
		Name: "mixed",
		Inputs: []domain.InputBinding{
			streamingIn("reads"),
			streamingIn("genome_bam"),
		},
	})

	_, err := b.Build()
	if !errors.Is(err, ErrUnsatisfiedDependency) {
		t.Fatalf("expected ErrUnsatisfiedDependency, got %v", err)
	}
}

func TestBuild_DanglingInput(t *testing.T) {
	b := NewBuilder()
	b.Register(&domain.TaskDef{
		Name:   "orphan",
		Inputs: []domain.InputBinding{streamingIn("nobody_makes_this")},
	})

	_, err := b.Build()
	if !errors.Is(err, ErrDanglingInput) {
		t.Fatalf("expected ErrDanglingInput, got %v", err)
	}
}

func TestBuild_CyclicGraph(t *testing.T) {
	b := NewBuilder()
	b.Register(&domain.TaskDef{
		Name:    "a",
		Inputs:  []domain.InputBinding{streamingIn("s2")},
		Outputs: []domain.OutputDecl{streamingOut("s1")},
	})
	b.Register(&domain.TaskDef{
		Name:    "b",
		Inputs:  []domain.InputBinding{streamingIn("s1")},
		Outputs: []domain.OutputDecl{streamingOut("s2")},
	})

	_, err := b.Build()
	if !errors.Is(err, ErrCyclicGraph) {
		t.Fatalf("expected ErrCyclicGraph, got %v", err)
	}
}

func TestBuild_DuplicateProducer(t *testing.T) {
	b := NewBuilder()
	b.Source("reads", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "t1",
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("out")},
	})
	b.Register(&domain.TaskDef{
		Name:    "t2",
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("out")},
	})

	_, err := b.Build()
	if !errors.Is(err, ErrDuplicateProducer) {
		t.Fatalf("expected ErrDuplicateProducer, got %v", err)
	}
}

func TestBuild_MergedStreamEdges(t *testing.T) {
	b := NewBuilder()
	b.Source("reads", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "align_mature",
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("mature_bam")},
	})
	b.Register(&domain.TaskDef{
		Name:    "align_hairpin",
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("hairpin_bam")},
	})
	b.MergeStreams("aligned", "mature_bam", "hairpin_bam")
	b.Register(&domain.TaskDef{
		Name:   "post",
		Inputs: []domain.InputBinding{streamingIn("aligned")},
	})

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Потребитель merged-потока зависит от продюсеров всех источников.
	post := g.Node("post")
	if post.InDegree != 2 {
		t.Fatalf("post InDegree = %d, want 2", post.InDegree)
	}
	if !post.DependsOnTransitively("align_mature") || !post.DependsOnTransitively("align_hairpin") {
		t.Error("post must depend on both aligners")
	}
}

func TestBuild_MergedStreamAliveThroughSource(t *testing.T) {
	// Один источник merged-потока — внешний source, второй — выход
	// отсечённой задачи. Merged-поток жив через source, потребитель
	// не отсекается и зависит только от активных продюсеров.
	b := NewBuilder()
	b.Source("raw", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "extra",
		When:    func() bool { return false },
		Inputs:  []domain.InputBinding{streamingIn("raw")},
		Outputs: []domain.OutputDecl{streamingOut("derived")},
	})
	b.MergeStreams("combined", "raw", "derived")
	b.Register(&domain.TaskDef{
		Name:   "consume",
		Inputs: []domain.InputBinding{streamingIn("combined")},
	})

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !g.HasTask("consume") {
		t.Fatal("consume must survive: merged stream has a live source")
	}
	if g.HasTask("extra") {
		t.Error("extra must be pruned")
	}
	if got := g.Node("consume").InDegree; got != 0 {
		t.Errorf("consume InDegree = %d, want 0 (only source feeds the merge)", got)
	}
}

func TestBuild_TopologicalOrder(t *testing.T) {
	b := NewBuilder()
	b.Source("reads", KindStreaming)
	b.Register(&domain.TaskDef{
		Name:    "trim",
		Inputs:  []domain.InputBinding{streamingIn("reads")},
		Outputs: []domain.OutputDecl{streamingOut("trimmed")},
	})
	b.Register(&domain.TaskDef{
		Name:   "align",
		Inputs: []domain.InputBinding{streamingIn("trimmed")},
	})

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pos := make(map[string]int)
	for i, node := range g.Order {
		pos[node.Task.Name] = i
	}
	if pos["trim"] > pos["align"] {
		t.Error("trim must precede align in topological order")
	}
}
