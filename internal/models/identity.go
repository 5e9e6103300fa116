package models

import (
	"fmt"
	"strings"

	"github.com/magabrotheeeer/paywall/internal/errs"
)

// IdentityKind различает владельца записи: аккаунт или устройство.
type IdentityKind int

const (
	// KindNone — пустая идентичность.
	KindNone IdentityKind = iota
	KindAccount
	KindDevice
)

func (k IdentityKind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindDevice:
		return "device"
	}
	return "none"
}

// Identity размеченное объединение Account(id) | Device(id).
// Вся логика приложения ветвится по Kind, а не по заполненности колонок.
type Identity struct {
	kind IdentityKind
	id   string
}

// AccountIdentity создаёт идентичность аккаунта.
func AccountIdentity(id string) Identity { return Identity{kind: KindAccount, id: id} }

// DeviceIdentity создаёт идентичность устройства.
func DeviceIdentity(id string) Identity { return Identity{kind: KindDevice, id: id} }

// ExactlyOne строит идентичность, когда вызывающая сторона обязана указать ровно одно из значений.
func ExactlyOne(accountID, deviceID string) (Identity, error) {
	accountID, deviceID = strings.TrimSpace(accountID), strings.TrimSpace(deviceID)
	switch {
	case accountID != "" && deviceID != "":
		return Identity{}, fmt.Errorf("%w: exactly one of account or device must be given", errs.ErrValidation)
	case accountID != "":
		return AccountIdentity(accountID), nil
	case deviceID != "":
		return DeviceIdentity(deviceID), nil
	}
	return Identity{}, fmt.Errorf("%w: account or device is required", errs.ErrValidation)
}

func (i Identity) Kind() IdentityKind { return i.kind }

func (i Identity) ID() string { return i.id }

func (i Identity) IsZero() bool { return i.kind == KindNone || i.id == "" }

// Columns раскладывает идентичность в пару nullable-колонок хранилища.
func (i Identity) Columns() (accountID, deviceID *string) {
	id := i.id
	switch i.kind {
	case KindAccount:
		return &id, nil
	case KindDevice:
		return nil, &id
	}
	return nil, nil
}

func (i Identity) String() string {
	if i.IsZero() {
		return "none"
	}
	return i.kind.String() + ":" + i.id
}

// BoundTo сериализуемая форма идентичности для ответов API.
type BoundTo struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Bound возвращает форму идентичности для ответа.
func (i Identity) Bound() BoundTo {
	return BoundTo{Kind: i.kind.String(), ID: i.id}
}
