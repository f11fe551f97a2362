package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/engine"
	"github.com/strelka-bio/strelka/internal/orchestrator"
)

// testState собирает минимальное состояние завершённого run'а.
func testState(t *testing.T) *orchestrator.RunState {
	t.Helper()

	b := engine.NewBuilder()
	b.Source("reads", engine.KindStreaming)
	b.Register(&domain.TaskDef{
		Name: "trim",
		Inputs: []domain.InputBinding{
			{Stream: "reads", Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{{Stream: "trimmed"}},
	})
	b.Register(&domain.TaskDef{
		Name: "align",
		Inputs: []domain.InputBinding{
			{Stream: "trimmed", Mode: domain.BindStreaming},
		},
	})
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	run := domain.NewRun("smallrna", map[string]any{"protocol": "illumina"})
	run.MarkRunning()

	state := orchestrator.NewRunState(run, g)

	ok := domain.NewTaskRun(run.ID, "trim", "sampleB")
	ok.MarkRunning()
	ok.MarkSucceeded()
	state.AddInstance(ok)

	bad := domain.NewTaskRun(run.ID, "trim", "sampleA")
	bad.MarkRunning()
	bad.MarkFailed("adapter not found")
	state.AddInstance(bad)
	state.RecordFailure(g.Node("trim").Task, "sampleA", "adapter not found")

	cancelled := domain.NewTaskRun(run.ID, "align", "")
	cancelled.MarkCancelled()
	state.AddInstance(cancelled)

	run.MarkFailed("one or more tasks failed")
	return state
}

func TestAggregatorBuild(t *testing.T) {
	state := testState(t)

	agg := NewAggregator()
	agg.Add("reads total", "2")
	agg.Addf("trimmed", "%d of %d", 1, 2)

	s := agg.Build(state)

	if s.Status != "FAILED" {
		t.Errorf("status = %s, want FAILED", s.Status)
	}

	// Поля сохраняют порядок добавления.
	if len(s.Fields) != 2 || s.Fields[0].Key != "reads total" || s.Fields[1].Value != "1 of 2" {
		t.Errorf("fields = %+v, want ordered [reads total, trimmed]", s.Fields)
	}

	// Задачи идут в топологическом порядке графа.
	if len(s.Tasks) != 2 || s.Tasks[0].Task != "trim" || s.Tasks[1].Task != "align" {
		t.Fatalf("tasks = %+v, want [trim align]", s.Tasks)
	}
	if s.Tasks[0].Succeeded != 1 || s.Tasks[0].Failed != 1 {
		t.Errorf("trim summary = %+v, want 1 ok / 1 failed", s.Tasks[0])
	}
	if s.Tasks[1].Cancelled != 1 {
		t.Errorf("align summary = %+v, want 1 cancelled", s.Tasks[1])
	}

	if len(s.Failures) != 1 || s.Failures[0].SampleKey != "sampleA" {
		t.Errorf("failures = %+v, want trim/sampleA", s.Failures)
	}
}

func TestSummaryWrite(t *testing.T) {
	state := testState(t)
	agg := NewAggregator()
	agg.Add("reads total", "2")
	s := agg.Build(state)

	outDir := t.TempDir()
	if err := s.Write(outDir); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	// JSON-отчёт парсится обратно и содержит те же задачи.
	data, err := os.ReadFile(filepath.Join(outDir, JSONFileName))
	if err != nil {
		t.Fatalf("read report.json: %v", err)
	}
	var parsed Summary
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal report.json: %v", err)
	}
	if parsed.RunID != s.RunID || len(parsed.Tasks) != 2 {
		t.Errorf("parsed report = %+v, want run %s with 2 tasks", parsed, s.RunID)
	}

	// Текстовый отчёт содержит статус и провал.
	text, err := os.ReadFile(filepath.Join(outDir, TextFileName))
	if err != nil {
		t.Fatalf("read report.txt: %v", err)
	}
	for _, want := range []string{"Status:   FAILED", "trim", "adapter not found"} {
		if !strings.Contains(string(text), want) {
			t.Errorf("report.txt missing %q:\n%s", want, text)
		}
	}
}

// fakePublisher — основной канал уведомлений для тестов.
type fakePublisher struct {
	err  error
	sent []*Notification
}

func (p *fakePublisher) PublishNotification(_ context.Context, n *Notification) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, n)
	return nil
}

func TestNotifierPrimaryChannel(t *testing.T) {
	pub := &fakePublisher{}
	outDir := t.TempDir()
	n := NewNotifier(pub, outDir, nil)

	n.Notify(context.Background(), &Summary{RunID: "r1", Status: "SUCCEEDED"}, "lab@example.org")

	if len(pub.sent) != 1 || pub.sent[0].Contact != "lab@example.org" {
		t.Fatalf("sent = %+v, want one notification to lab@example.org", pub.sent)
	}
	// Фолбэк не задействован.
	if _, err := os.Stat(filepath.Join(outDir, FallbackFileName)); !os.IsNotExist(err) {
		t.Errorf("fallback file exists, want none")
	}
}

func TestNotifierFallbackOnPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	outDir := t.TempDir()
	n := NewNotifier(pub, outDir, nil)

	n.Notify(context.Background(), &Summary{RunID: "r1", Status: "FAILED", Error: "boom"}, "lab@example.org")

	data, err := os.ReadFile(filepath.Join(outDir, FallbackFileName))
	if err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}
	var payload Notification
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal fallback: %v", err)
	}
	if payload.RunID != "r1" || payload.Status != "FAILED" {
		t.Errorf("fallback payload = %+v, want r1/FAILED", payload)
	}
}

func TestNotifierNoContact(t *testing.T) {
	pub := &fakePublisher{}
	outDir := t.TempDir()
	n := NewNotifier(pub, outDir, nil)

	n.Notify(context.Background(), &Summary{RunID: "r1"}, "")

	if len(pub.sent) != 0 {
		t.Errorf("sent = %d, want 0 for empty contact", len(pub.sent))
	}
	if _, err := os.Stat(filepath.Join(outDir, FallbackFileName)); !os.IsNotExist(err) {
		t.Errorf("fallback file exists, want none")
	}
}
