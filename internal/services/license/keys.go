package license

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"
)

// Alphabet 32 символа без визуально похожих (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	keySymbols = 25
	groupSize  = 5
)

// NewKey генерирует ключ вида XXXXX-XXXXX-XXXXX-XXXXX-XXXXX (125 бит энтропии).
func NewKey() (string, error) {
	buf := make([]byte, keySymbols)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("license.NewKey: %w", err)
	}

	var b strings.Builder
	b.Grow(keySymbols + keySymbols/groupSize - 1)
	for i, v := range buf {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		// 256 делится на 32 без остатка, поэтому выбор символа равномерный.
		b.WriteByte(Alphabet[int(v)%len(Alphabet)])
	}
	return b.String(), nil
}

// Normalize приводит ключ к каноническому виду: верхний регистр, без дефисов и пробелов.
func Normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
