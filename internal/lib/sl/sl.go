// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — единообразно формировать структурированные поля лога:
// ошибки и маскированные секреты (лицензионные ключи, отпечатки устройств).
package sl

import (
	"log/slog"
	"strings"
)

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Masked возвращает атрибут, в котором видна только первая группа секрета.
// Ключ вида ABCDE-FGHJK-... превращается в ABCDE-****.
func Masked(key, secret string) slog.Attr {
	return slog.String(key, Mask(secret))
}

// Mask скрывает всё, кроме первой группы (или первых четырёх символов) значения.
func Mask(secret string) string {
	if i := strings.IndexByte(secret, '-'); i > 0 {
		return secret[:i] + "-****"
	}
	if len(secret) > 8 {
		return secret[:4] + "****"
	}
	return "****"
}
