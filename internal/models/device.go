package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/paywall/internal/errs"
)

// TrialLength длительность гостевого пробного периода.
const TrialLength = 72 * time.Hour

// TrialPlanID ключ тарифа для записей, созданных пробным периодом.
const TrialPlanID = "trial"

// MaxFingerprintLen максимальная длина отпечатка в символах.
const MaxFingerprintLen = 512

// NormalizeFingerprint обрезает пробелы и проверяет длину отпечатка.
func NormalizeFingerprint(fp string) (string, error) {
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return "", fmt.Errorf("%w: fingerprint is required", errs.ErrValidation)
	}
	if utf8.RuneCountInString(fp) > MaxFingerprintLen {
		return "", fmt.Errorf("%w: fingerprint is longer than %d characters", errs.ErrValidation, MaxFingerprintLen)
	}
	return fp, nil
}

// Device представляет одну гостевую установку. Отпечаток хранится только как ключевой хэш.
type Device struct {
	ID              string
	FingerprintHash string
	TrialStart      time.Time // Задаётся один раз при создании
	TrialEnd        time.Time // Задаётся один раз при создании
	LinkedAccount   *string   // nil → значение, никогда не сбрасывается
	Status          Status
	CreatedAt       time.Time
}

// Identity возвращает идентичность устройства.
func (d *Device) Identity() Identity { return DeviceIdentity(d.ID) }

// Owner возвращает владельца прав устройства: после связывания это аккаунт.
func (d *Device) Owner() Identity {
	if d.LinkedAccount != nil {
		return AccountIdentity(*d.LinkedAccount)
	}
	return d.Identity()
}

// TrialView ответ на запуск пробного периода.
type TrialView struct {
	ID                 string    `json:"id"`
	TrialStart         time.Time `json:"trial_start"`
	TrialEnd           time.Time `json:"trial_end"`
	Status             Status    `json:"status"`
	IsTrialActive      bool      `json:"is_trial_active"`
	TrialDaysRemaining int       `json:"trial_days_remaining"`
}
