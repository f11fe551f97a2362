package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// suffixGroups — известные суффиксы в порядке снятия (снаружи внутрь).
//
// Порядок соответствует тому, как стадии пайплайна наращивают имя файла:
// базовое имя → парный маркер → маркер триммера → маркеры выравнивателя →
// расширение формата → расширение компрессии. Снятие идёт с конца имени,
// поэтому группы перечислены от внешней к внутренней. Стадии, запущенные
// позже, находят уже частично очищенные имена и снимают меньше суффиксов.
//
// Внутри группы суффиксы снимаются, пока хоть один совпадает: выравниватель
// может навесить и маркер референса, и маркер unmapped ("_mature_unmapped").
var suffixGroups = [][]string{
	{".gz", ".bz2"},
	{".fastq", ".fq", ".fasta", ".fa", ".sam", ".bam", ".stats"},
	{"_unmapped", "_mature", "_hairpin", "_genome"},
	{"_trimmed", "_trim"},
	{"_R1", "_R2", "_1", "_2"},
}

// ResolveSampleKey выводит стабильный ключ образца из имени файла.
//
// Снимает известные суффиксы за один проход по списку групп. Артефакты
// одного образца на разных стадиях сходятся к одному ключу, сколько бы
// суффиксов каждая стадия ни добавила: повторное применение к уже
// очищенному ключу ничего не меняет.
//
// Если ни один известный суффикс не совпал, снимается последнее
// расширение — но только из списка отчётных форматов: произвольная
// точка в уже очищенном ключе ("sample.v1") не расширение, и снимать
// её нельзя, иначе повторное применение меняло бы ключ. Пустой
// результат — ошибка ErrInvalidSampleKey: такой ключ не позволил бы
// сопоставить артефакты между стадиями.
func ResolveSampleKey(filename string) (string, error) {
	name := filepath.Base(filename)

	key := name
	for _, group := range suffixGroups {
		for {
			stripped := stripAny(key, group)
			if stripped == key {
				break
			}
			key = stripped
		}
	}

	// Ни один известный суффикс не совпал — фолбэк на имя без
	// отчётного расширения.
	if key == name {
		if ext := filepath.Ext(name); reportExtensions[ext] {
			key = strings.TrimSuffix(name, ext)
		}
	}

	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSampleKey, filename)
	}

	return key, nil
}

// reportExtensions — расширения отчётных артефактов (QC-отчёты, сводки,
// графики), которые фолбэк снимает с несеквенсных имён.
var reportExtensions = map[string]bool{
	".html": true,
	".txt":  true,
	".csv":  true,
	".tsv":  true,
	".json": true,
	".log":  true,
	".zip":  true,
	".pdf":  true,
	".png":  true,
	".svg":  true,
}

// stripAny снимает первый совпавший суффикс из группы.
// Может оставить пустую строку — это диагностируется выше.
func stripAny(name string, group []string) string {
	for _, suffix := range group {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}
