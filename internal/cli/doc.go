// Package cli реализует инструмент командной строки Strelka.
//
// # Обзор
//
// CLI запускает пайплайн в том же процессе: собирает граф задач из
// конфигурации, выполняет run через оркестратор и печатает сводку.
// Внешняя инфраструктура (Postgres, RabbitMQ) опциональна и
// подключается переменными окружения DB_URL и AMQP_URL.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: strelka graph --json | jq .
//
// ## Commands
//
//   - run:   выполнить пайплайн по YAML-файлу параметров и флагам
//   - graph: показать граф задач для конфигурации без выполнения
//
// Каждая команда создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую outputFn — замыкание для ленивого создания Output после
// парсинга PersistentFlags.
package cli
