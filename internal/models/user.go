package models

import "time"

// ApartmentRef — вложенная ссылка на квартиру жильца.
type ApartmentRef struct {
	Number int `json:"number"`
}

// User — учётная запись жильца в списке управдома (GET /users).
type User struct {
	ID          int64         `json:"id"`
	Phone       string        `json:"phone"`
	FullName    string        `json:"fullName,omitempty"`
	Role        Role          `json:"role"`
	CreatedAt   time.Time     `json:"createdAt"`
	ApartmentID *int64        `json:"apartmentId"`
	Apartment   *ApartmentRef `json:"apartment"`
}

// IsAdmin — учётная запись управдома.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// LoginRequest — тело POST /auth/login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// ChangePasswordRequest — тело PATCH /users/change-password.
type ChangePasswordRequest struct {
	OldPasswordPlain string `json:"oldPasswordPlain"`
	NewPasswordPlain string `json:"newPasswordPlain"`
}

// ResidentRequest — тело POST /users/register-neighbor и PATCH /users/{id}.
// ApartmentID и PasswordPlain отправляются только если заданы.
type ResidentRequest struct {
	Phone         string `json:"phone"`
	FullName      string `json:"fullName,omitempty"`
	ApartmentID   *int64 `json:"apartmentId,omitempty"`
	PasswordPlain string `json:"passwordPlain,omitempty"`
}
