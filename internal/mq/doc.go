// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий run'ов и уведомлений
//
// Типы сообщений:
//   - run.started    — run начал выполняться
//   - run.completed  — run завершён (со списком провалов)
//   - notification   — уведомление получателю о завершении run'а
//
// Exchanges:
//   - strelka.runs           — события run'ов
//   - strelka.notifications  — уведомления для внешней доставки
package mq
