package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strelka-bio/strelka/internal/domain"
)

func item(key, path string) domain.Item {
	return domain.Item{SampleKey: key, Path: path}
}

// drain вычитывает streaming-поток до закрытия.
func drain(t *testing.T, sub *Subscription) []domain.Item {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var items []domain.Item
	for {
		it, ok, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return items
		}
		items = append(items, it)
	}
}

func TestStream_FanOut(t *testing.T) {
	s := NewStream("reads", KindStreaming)

	early := s.Subscribe()

	if err := s.Publish(item("a", "a.fastq")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.Publish(item("b", "b.fastq")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Поздний подписчик обязан увидеть всю историю, а не только новые item'ы.
	late := s.Subscribe()

	if err := s.Publish(item("c", "c.fastq")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.Close()

	for name, sub := range map[string]*Subscription{"early": early, "late": late} {
		got := drain(t, sub)
		if len(got) != 3 {
			t.Fatalf("%s subscriber: expected 3 items, got %d", name, len(got))
		}
		if sub.Delivered() != 3 {
			t.Errorf("%s subscriber: Delivered() = %d, want 3", name, sub.Delivered())
		}
		// Порядок доставки совпадает с порядком публикации.
		for i, key := range []string{"a", "b", "c"} {
			if got[i].SampleKey != key {
				t.Errorf("%s subscriber: item %d = %q, want %q", name, i, got[i].SampleKey, key)
			}
		}
	}
}

func TestStream_PublishAfterClose(t *testing.T) {
	s := NewStream("reads", KindStreaming)
	s.Close()

	err := s.Publish(item("a", "a.fastq"))
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestStream_CollectingDeliversOnlyAfterClose(t *testing.T) {
	s := NewStream("stats", KindCollecting)
	sub := s.Subscribe()

	if err := s.Publish(item("b", "b.stats")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.Publish(item("a", "a.stats")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// До закрытия Batch обязан блокироваться.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := sub.Batch(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline before close, got %v", err)
	}

	if err := s.Publish(item("c", "c.stats")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.Close()

	batch, err := sub.Batch(context.Background())
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 items, got %d", len(batch))
	}
	// Пачка отсортирована по ключу образца по возрастанию.
	for i, key := range []string{"a", "b", "c"} {
		if batch[i].SampleKey != key {
			t.Errorf("batch[%d] = %q, want %q", i, batch[i].SampleKey, key)
		}
	}
}

func TestStream_WrongKind(t *testing.T) {
	streaming := NewStream("s", KindStreaming)
	collecting := NewStream("c", KindCollecting)

	if _, err := streaming.Subscribe().Batch(context.Background()); !errors.Is(err, ErrWrongStreamKind) {
		t.Errorf("Batch on streaming stream: expected ErrWrongStreamKind, got %v", err)
	}
	if _, _, err := collecting.Subscribe().Next(context.Background()); !errors.Is(err, ErrWrongStreamKind) {
		t.Errorf("Next on collecting stream: expected ErrWrongStreamKind, got %v", err)
	}
}

func TestMerge_AllItemsArrive(t *testing.T) {
	a := NewStream("mature_bam", KindStreaming)
	b := NewStream("hairpin_bam", KindStreaming)

	ctx := context.Background()
	merged := Merge(ctx, "aligned", a, b)
	sub := merged.Subscribe()

	for _, key := range []string{"a1", "a2", "a3"} {
		if err := a.Publish(item(key, key+"_mature.bam")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for _, key := range []string{"b1", "b2", "b3"} {
		if err := b.Publish(item(key, key+"_hairpin.bam")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	a.Close()
	b.Close()

	got := drain(t, sub)
	if len(got) != 6 {
		t.Fatalf("expected 6 merged items, got %d", len(got))
	}

	// Относительный порядок внутри каждого источника сохраняется.
	var fromA, fromB []string
	for _, it := range got {
		switch it.SampleKey[0] {
		case 'a':
			fromA = append(fromA, it.SampleKey)
		case 'b':
			fromB = append(fromB, it.SampleKey)
		}
	}
	for i, key := range []string{"a1", "a2", "a3"} {
		if fromA[i] != key {
			t.Errorf("source A order broken: %v", fromA)
			break
		}
	}
	for i, key := range []string{"b1", "b2", "b3"} {
		if fromB[i] != key {
			t.Errorf("source B order broken: %v", fromB)
			break
		}
	}
}

func TestMerge_ClosesOnlyWhenAllSourcesClosed(t *testing.T) {
	a := NewStream("a", KindStreaming)
	b := NewStream("b", KindStreaming)
	merged := Merge(context.Background(), "m", a, b)

	a.Close()

	// Один источник закрыт — merged ещё жив.
	time.Sleep(20 * time.Millisecond)
	if merged.Closed() {
		t.Fatal("merged stream closed before all sources closed")
	}

	b.Close()
	deadline := time.Now().Add(2 * time.Second)
	for !merged.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("merged stream did not close after all sources closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewClosedStream(t *testing.T) {
	s := NewClosedStream("fallback", KindStreaming)
	if !s.Closed() {
		t.Fatal("fallback stream must be closed")
	}
	got := drain(t, s.Subscribe())
	if len(got) != 0 {
		t.Fatalf("fallback stream must be empty, got %d items", len(got))
	}
}
