package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns          Exchange = "strelka.runs"
	ExchangeNotifications Exchange = "strelka.notifications"
)

// Queues — имена очередей.
const (
	QueueRunEvents     Queue = "runs.events"
	QueueNotifications Queue = "notifications.outbox"
)

// Routing keys.
const (
	RoutingKeyStarted      RoutingKey = "started"
	RoutingKeyCompleted    RoutingKey = "completed"
	RoutingKeyNotification RoutingKey = "notification"
)

// SetupTopology создаёт всю топологию RabbitMQ: exchanges, queues и bindings.
// Идемпотентна: повторное объявление существующих сущностей безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		if err := bindQueues(ch); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRuns, "direct"},
		{ExchangeNotifications, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []Queue{
		// runs.events — события начала и завершения run'ов
		QueueRunEvents,

		// notifications.outbox — уведомления для внешней доставки
		QueueNotifications,
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunEvents, RoutingKeyStarted, ExchangeRuns},
		{QueueRunEvents, RoutingKeyCompleted, ExchangeRuns},
		{QueueNotifications, RoutingKeyNotification, ExchangeNotifications},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Strelka RabbitMQ Topology:

    strelka.runs (direct)
    └── runs.events [routing: started, completed]
            Consumer: external monitoring

    strelka.notifications (direct)
    └── notifications.outbox [routing: notification]
            Consumer: delivery service (email)
  `
}
