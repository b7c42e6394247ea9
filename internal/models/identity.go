// models описывает контракт данных REST-бэкенда, который потребляет клиент.
// Записи декодируются на границе (gateway/api) и дальше по коду ходят уже
// проверенными структурами, а не "сырым" JSON.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidIdentity — профиль от бэкенда не проходит проверку обязательных полей.
var ErrInvalidIdentity = errors.New("invalid identity payload")

// Role — роль пользователя в доме.
type Role string

const (
	// RoleAdmin — управдом: распределяет общие расходы, управляет жильцами и категориями.
	RoleAdmin Role = "ADMIN"
	// RoleUser — сосед (жилец квартиры).
	RoleUser Role = "USER"
)

// Valid сообщает, входит ли роль в перечисление.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Identity — профиль аутентифицированного пользователя (GET /auth/profile).
//
// Обязательные поля: ID, Phone, Role. ApartmentID и FullName могут отсутствовать
// (у управдома может не быть привязанной квартиры).
type Identity struct {
	ID          int64   `json:"id"`
	Phone       string  `json:"phone"`
	Role        Role    `json:"role"`
	ApartmentID *int64  `json:"apartmentId,omitempty"`
	FullName    *string `json:"fullName,omitempty"`
}

// DecodeIdentity декодирует и валидирует профиль.
func DecodeIdentity(data []byte) (*Identity, error) {
	const op = "models.DecodeIdentity"

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidIdentity, err)
	}

	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &id, nil
}

// Validate проверяет обязательные поля профиля.
func (i *Identity) Validate() error {
	switch {
	case i == nil:
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	case i.ID <= 0:
		return fmt.Errorf("%w: id must be positive", ErrInvalidIdentity)
	case i.Phone == "":
		return fmt.Errorf("%w: phone is required", ErrInvalidIdentity)
	case !i.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, i.Role)
	}

	return nil
}

// IsAdmin — true для управдома.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// DisplayRole — подпись роли для пользователя.
func (i *Identity) DisplayRole() string {
	if i.IsAdmin() {
		return "Управдом"
	}

	return "Сосед"
}

// DisplayName — ФИО, если задано, иначе телефон.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if i.FullName != nil && *i.FullName != "" {
		return *i.FullName
	}

	return i.Phone
}
