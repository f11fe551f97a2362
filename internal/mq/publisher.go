package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/report"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunStarted   MessageType = "run.started"
	MessageTypeRunCompleted MessageType = "run.completed"
	MessageTypeNotification MessageType = "notification"
)

// Publisher публикует события run'ов и уведомления в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunStartedPayload — payload события о старте run'а.
type RunStartedPayload struct {
	RunID    uuid.UUID      `json:"run_id"`
	Pipeline string         `json:"pipeline"`
	Params   map[string]any `json:"params,omitempty"`
}

// RunCompletedPayload — payload события о завершении run'а.
type RunCompletedPayload struct {
	RunID    uuid.UUID            `json:"run_id"`
	Pipeline string               `json:"pipeline"`
	Status   string               `json:"status"` // SUCCEEDED или FAILED
	Error    string               `json:"error,omitempty"`
	Failures []domain.TaskFailure `json:"failures,omitempty"`
	Duration string               `json:"duration,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishRunStarted публикует событие о старте run'а.
func (p *Publisher) PublishRunStarted(ctx context.Context, run *domain.Run) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeRunStarted,
		Payload: RunStartedPayload{
			RunID:    run.ID,
			Pipeline: run.Pipeline,
			Params:   run.Params,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeRuns, RoutingKeyStarted, msg)
}

// PublishRunCompleted публикует событие о завершении run'а
// со списком провалов.
func (p *Publisher) PublishRunCompleted(ctx context.Context, run *domain.Run, failures []domain.TaskFailure) error {
	payload := RunCompletedPayload{
		RunID:    run.ID,
		Pipeline: run.Pipeline,
		Status:   string(run.Status),
		Error:    run.Error,
		Failures: failures,
	}
	if d := run.Duration(); d > 0 {
		payload.Duration = d.Round(time.Millisecond).String()
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRunCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeRuns, RoutingKeyCompleted, msg)
}

// PublishNotification публикует уведомление о завершении run'а
// в очередь внешней доставки. Основной канал report.Notifier.
func (p *Publisher) PublishNotification(ctx context.Context, n *report.Notification) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeNotification,
		Payload:   n,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeNotifications, RoutingKeyNotification, msg)
}
