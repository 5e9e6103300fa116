// Package errs содержит сентинел-ошибки, общие для слоёв хранилища, сервисов и HTTP.
//
// Ошибки разделены на категории (ErrValidation, ErrNotFound, ErrConflict, ErrUnauthorized,
// ErrUpstream, ErrInvalidSignature). Конкретные ошибки (например, ErrAlreadyRedeemed)
// разворачиваются в свою категорию, поэтому errors.Is(err, errs.ErrConflict) истинно
// для любой ошибки конфликта.
package errs

import "errors"

// Категории ошибок.
var (
	// ErrValidation — некорректный ввод, состояние не изменялось.
	ErrValidation = errors.New("validation error")
	// ErrNotFound — сущность (ключ, устройство, запись) отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrConflict — операция завершилась предсказуемым исходом без эффекта.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized — неверный токен или административные учётные данные.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream — провайдер идентификации или биллинга недоступен либо отклонил запрос.
	ErrUpstream = errors.New("upstream failure")
	// ErrInvalidSignature — подпись webhook не прошла проверку.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Конкретные ошибки доменной логики.
var (
	ErrInvalidKey      = newKind("invalid license key", ErrNotFound)
	ErrDeviceNotFound  = newKind("device not found", ErrNotFound)
	ErrAlreadyRedeemed = newKind("license key already redeemed", ErrConflict)
	ErrKeyExpired      = newKind("license key expired", ErrConflict)
	ErrAlreadyLinked   = newKind("device already linked", ErrConflict)
	ErrAlreadyExists   = newKind("already exists", ErrConflict)
	ErrInvalidToken    = newKind("invalid token", ErrUnauthorized)
)

type kindError struct {
	msg  string
	kind error
}

func newKind(msg string, kind error) error {
	return &kindError{msg: msg, kind: kind}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
