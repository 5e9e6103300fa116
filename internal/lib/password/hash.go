// Package password реализует хеширование и проверку административных ключей.
//
// GetHash создает bcrypt-хеш ключа для хранения в конфигурации.
// CompareHash сравнивает bcrypt-хеш с предъявленным ключом.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GetHash принимает секрет и возвращает его bcrypt‑хэш.
func GetHash(secret string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает bcrypt‑хэш с предъявленным секретом.
//
// Возвращает nil, если секрет соответствует хэшу, иначе — ошибку.
func CompareHash(originalHash, presented string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(presented)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
