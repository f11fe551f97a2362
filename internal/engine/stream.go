package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/strelka-bio/strelka/internal/domain"
)

// Kind — вид потока.
type Kind int

const (
	// KindStreaming — подписчики видят item'ы по мере публикации.
	KindStreaming Kind = iota

	// KindCollecting — подписчик получает весь поток одной пачкой
	// (отсортированной по ключу образца) только после закрытия.
	KindCollecting
)

// String возвращает строковое представление Kind.
func (k Kind) String() string {
	if k == KindCollecting {
		return "collecting"
	}
	return "streaming"
}

// Stream — типизированный поток артефактов: ровно один продюсер,
// один или больше независимых подписчиков.
//
// Поток хранит полную историю публикаций, поэтому поздний подписчик
// видит все item'ы с момента создания потока, а не только новые.
// Гарантия fan-out: каждый подписчик получает каждый опубликованный
// item ровно один раз, без потерь.
type Stream struct {
	name string
	kind Kind

	mu     sync.Mutex
	items  []domain.Item
	closed bool

	// wake закрывается при каждой публикации/закрытии и заменяется новым,
	// чтобы разбудить все заблокированные чтения.
	wake chan struct{}
}

// NewStream создаёт пустой открытый поток.
func NewStream(name string, kind Kind) *Stream {
	return &Stream{
		name: name,
		kind: kind,
		wake: make(chan struct{}),
	}
}

// NewClosedStream создаёт пустой уже закрытый поток.
// Используется как фолбэк для Optional-привязок к отсечённым ветвям.
func NewClosedStream(name string, kind Kind) *Stream {
	s := NewStream(name, kind)
	s.Close()
	return s
}

// Name возвращает имя потока.
func (s *Stream) Name() string { return s.name }

// Kind возвращает вид потока.
func (s *Stream) Kind() Kind { return s.kind }

// Publish добавляет item в поток и будит подписчиков.
//
// Для collecting-потока item буферизуется и не виден подписчикам до
// закрытия. Публикация в закрытый поток — ошибка программирования,
// возвращает ErrStreamClosed (фатально для run'а).
func (s *Stream) Publish(item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: stream %q", ErrStreamClosed, s.name)
	}

	s.items = append(s.items, item)
	s.notifyLocked()
	return nil
}

// Close помечает, что item'ов больше не будет.
//
// Для collecting-потока это событие доставляет накопленную пачку
// подписчикам. Повторное закрытие — no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.notifyLocked()
}

// Closed возвращает true, если поток закрыт.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len возвращает количество опубликованных item'ов.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// notifyLocked будит все заблокированные чтения. Вызывается под mu.
func (s *Stream) notifyLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// Subscribe возвращает независимый курсор чтения.
//
// Подписка в любой момент жизни потока равноценна: курсор начинает
// с самого первого item'а.
func (s *Stream) Subscribe() *Subscription {
	return &Subscription{stream: s}
}

// Subscription — независимый курсор одного подписчика.
type Subscription struct {
	stream *Stream
	pos    int
}

// Stream возвращает поток подписки.
func (sub *Subscription) Stream() *Stream { return sub.stream }

// Delivered возвращает количество уже доставленных item'ов.
func (sub *Subscription) Delivered() int { return sub.pos }

// Next возвращает следующий item streaming-потока.
//
// Блокируется, пока item не опубликован или поток не закрыт.
// Второе возвращаемое значение false означает, что поток закрыт
// и все item'ы доставлены.
func (sub *Subscription) Next(ctx context.Context) (domain.Item, bool, error) {
	s := sub.stream
	if s.kind != KindStreaming {
		return domain.Item{}, false, fmt.Errorf("%w: Next on %s stream %q",
			ErrWrongStreamKind, s.kind, s.name)
	}

	for {
		s.mu.Lock()
		if sub.pos < len(s.items) {
			item := s.items[sub.pos]
			sub.pos++
			s.mu.Unlock()
			return item, true, nil
		}
		if s.closed {
			s.mu.Unlock()
			return domain.Item{}, false, nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Item{}, false, ctx.Err()
		case <-wake:
		}
	}
}

// Batch возвращает полную пачку collecting-потока.
//
// Блокируется до закрытия потока: ни один item не доставляется
// collecting-подписчику раньше. Пачка отсортирована по ключу образца
// (при равных ключах — по имени артефакта) для детерминизма ниже по
// графу.
func (sub *Subscription) Batch(ctx context.Context) ([]domain.Item, error) {
	s := sub.stream
	if s.kind != KindCollecting {
		return nil, fmt.Errorf("%w: Batch on %s stream %q",
			ErrWrongStreamKind, s.kind, s.name)
	}

	for {
		s.mu.Lock()
		if s.closed {
			batch := make([]domain.Item, len(s.items))
			copy(batch, s.items)
			sub.pos = len(batch)
			s.mu.Unlock()

			sort.Slice(batch, func(i, j int) bool {
				if batch[i].SampleKey != batch[j].SampleKey {
					return batch[i].SampleKey < batch[j].SampleKey
				}
				return batch[i].Name() < batch[j].Name()
			})
			return batch, nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Merge объединяет несколько потоков-источников в один.
//
// Подписчик результирующего потока видит item'ы всех источников в
// порядке их публикации; относительный порядок внутри одного источника
// сохраняется, между источниками — нет. Результат закрывается, когда
// закрыты все источники.
//
// Насосы останавливаются при отмене ctx; в этом случае результат
// закрывается недоставленным.
func Merge(ctx context.Context, name string, sources ...*Stream) *Stream {
	merged := NewStream(name, KindStreaming)
	MergeInto(ctx, merged, sources...)
	return merged
}

// MergeInto запускает насосы из источников в уже существующий поток dst.
// Используется графом: merged-поток создаётся при сборке, а насосы
// стартуют вместе с выполнением run'а.
func MergeInto(ctx context.Context, dst *Stream, sources ...*Stream) {
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src *Stream) {
			defer wg.Done()
			sub := src.Subscribe()
			for {
				item, ok, err := sub.Next(ctx)
				if err != nil || !ok {
					return
				}
				if err := dst.Publish(item); err != nil {
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		dst.Close()
	}()
}
