// Package worker выполняет единицы работы задач: запускает внешние
// биоинформатические инструменты и собирает их выходные артефакты.
//
// Движок не интерпретирует форматы вывода инструментов: контракт —
// это argv, код возврата, stdout/stderr и объявленные glob-шаблоны
// выходных файлов.
package worker
