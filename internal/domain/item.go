package domain

import (
	"path/filepath"
)

// Item — неизменяемый дескриптор одного артефакта (файла) в потоке данных.
//
// Item создаётся ровно одним выполнением задачи (или загрузкой входных
// файлов run'а) и после этого не изменяется. При fan-out каждый подписчик
// получает независимую ссылку на тот же артефакт — изменять файл на месте
// подписчикам нельзя.
type Item struct {
	// SampleKey — стабильный ключ образца, выведенный из имени файла.
	// Связывает артефакты одного биологического образца между стадиями,
	// несмотря на суффиксы, добавляемые инструментами.
	SampleKey string `json:"sample_key"`

	// Path — путь к артефакту на диске.
	Path string `json:"path"`

	// Producer — имя задачи, породившей артефакт.
	// Пустая строка для исходных входных файлов run'а.
	Producer string `json:"producer,omitempty"`
}

// Name возвращает базовое имя файла артефакта.
func (it Item) Name() string {
	return filepath.Base(it.Path)
}
