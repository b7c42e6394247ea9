package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pribylovaa/upravdom-client/internal/gateway"
	"github.com/pribylovaa/upravdom-client/internal/models"
)

// Login — POST /auth/login. Запрос идёт без обновления токенов: неверный
// пароль не должен затрагивать сохранённую сессию.
func (c *Client) Login(ctx context.Context, phone, password string) (models.TokenPair, error) {
	const op = "api.Login"

	var pair models.TokenPair
	err := c.doer.DoJSON(ctx, http.MethodPost, "/auth/login",
		models.LoginRequest{Phone: phone, Password: password}, &pair, gateway.WithoutRefresh())
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := pair.Validate(); err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// Profile — GET /auth/profile. Ответ проверяется на обязательные поля.
func (c *Client) Profile(ctx context.Context) (*models.Identity, error) {
	const op = "api.Profile"

	var raw json.RawMessage
	if err := c.doer.DoJSON(ctx, http.MethodGet, "/auth/profile", nil, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := models.DecodeIdentity(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// ChangePassword — PATCH /users/change-password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	const op = "api.ChangePassword"

	if oldPassword == "" {
		return invalid("oldPassword", "Введите текущий пароль")
	}
	if len([]rune(newPassword)) < MinPasswordLen {
		return invalid("newPassword", "Новый пароль должен быть не короче 6 символов")
	}

	err := c.doer.DoJSON(ctx, http.MethodPatch, "/users/change-password",
		models.ChangePasswordRequest{OldPasswordPlain: oldPassword, NewPasswordPlain: newPassword}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
