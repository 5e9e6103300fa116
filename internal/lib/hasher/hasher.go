// Package hasher вычисляет ключевые односторонние хэши (HMAC-SHA256) секретов:
// отпечатков устройств и лицензионных ключей. В хранилище попадает только хэш.
package hasher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyKey возвращается, если ключ хэширования не задан.
var ErrEmptyKey = errors.New("hasher: empty key")

// Hasher вычисляет HMAC-SHA256 с секретным ключом сервиса.
type Hasher struct {
	key []byte
}

// New создаёт Hasher. Пустой ключ недопустим.
func New(key string) (*Hasher, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Hasher{key: []byte(key)}, nil
}

// Sum возвращает hex-представление HMAC значения с доменным префиксом.
// Префикс разделяет пространства хэшей отпечатков и ключей.
func (h *Hasher) Sum(domain, value string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(domain))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Fingerprint хэширует отпечаток устройства.
func (h *Hasher) Fingerprint(fp string) string { return h.Sum("device", fp) }

// LicenseKey хэширует нормализованный лицензионный ключ.
func (h *Hasher) LicenseKey(key string) string { return h.Sum("license", key) }
