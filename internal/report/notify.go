package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FallbackFileName — имя файла уведомления в каталоге результатов,
// когда основной канал доставки недоступен.
const FallbackFileName = "notification.json"

// Notification — полезная нагрузка уведомления о завершении run'а.
type Notification struct {
	RunID    string    `json:"run_id"`
	Pipeline string    `json:"pipeline"`
	Status   string    `json:"status"`
	Contact  string    `json:"contact"`
	Error    string    `json:"error,omitempty"`
	Failures int       `json:"failures"`
	SentAt   time.Time `json:"sent_at"`
}

// Publisher — основной канал доставки уведомлений (реализуется
// пакетом mq).
type Publisher interface {
	PublishNotification(ctx context.Context, n *Notification) error
}

// Notifier доставляет уведомление о завершении run'а.
//
// Основной канал — Publisher; при его отсутствии или ошибке доставки
// уведомление пишется в notification.json рядом с отчётом. Ошибка
// доставки логируется и никогда не влияет на статус run'а.
type Notifier struct {
	publisher Publisher
	outDir    string
	logger    *slog.Logger
}

// NewNotifier создаёт Notifier. publisher может быть nil — тогда
// используется только файловый фолбэк.
func NewNotifier(publisher Publisher, outDir string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{publisher: publisher, outDir: outDir, logger: logger}
}

// Notify отправляет уведомление получателю contact.
// Пустой contact — уведомление не запрошено, no-op.
func (n *Notifier) Notify(ctx context.Context, summary *Summary, contact string) {
	if contact == "" {
		return
	}

	payload := &Notification{
		RunID:    summary.RunID,
		Pipeline: summary.Pipeline,
		Status:   summary.Status,
		Contact:  contact,
		Error:    summary.Error,
		Failures: len(summary.Failures),
		SentAt:   time.Now(),
	}

	if n.publisher != nil {
		err := n.publisher.PublishNotification(ctx, payload)
		if err == nil {
			n.logger.Info("notification published", "contact", contact)
			return
		}
		n.logger.Warn("notification publish failed, falling back to file",
			"contact", contact, "error", err)
	}

	if err := n.writeFallback(payload); err != nil {
		n.logger.Warn("notification fallback failed", "contact", contact, "error", err)
		return
	}
	n.logger.Info("notification written to fallback file",
		"file", filepath.Join(n.outDir, FallbackFileName))
}

// writeFallback пишет уведомление в файл в каталоге результатов.
func (n *Notifier) writeFallback(payload *Notification) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := os.MkdirAll(n.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return os.WriteFile(filepath.Join(n.outDir, FallbackFileName), data, 0o644)
}
