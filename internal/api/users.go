package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// ResidentForm — данные формы жильца.
type ResidentForm struct {
	Phone    string
	FullName string
	// ApartmentID 0 означает, что квартира не привязана.
	ApartmentID int64
	// Password при создании обязателен, при редактировании только если меняется.
	Password string
}

func (f ResidentForm) request() models.ResidentRequest {
	req := models.ResidentRequest{
		Phone:         strings.TrimSpace(f.Phone),
		FullName:      strings.TrimSpace(f.FullName),
		PasswordPlain: f.Password,
	}
	if f.ApartmentID > 0 {
		apt := f.ApartmentID
		req.ApartmentID = &apt
	}

	return req
}

// ListUsers — GET /users.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "api.ListUsers"

	var out []models.User
	if err := c.doer.DoJSON(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// RegisterNeighbor — POST /users/register-neighbor.
func (c *Client) RegisterNeighbor(ctx context.Context, form ResidentForm) (*models.User, error) {
	const op = "api.RegisterNeighbor"

	if strings.TrimSpace(form.Phone) == "" {
		return nil, invalid("phone", "Введите телефон")
	}
	if len([]rune(form.Password)) < MinPasswordLen {
		return nil, invalid("password", "Пароль должен быть не короче 6 символов")
	}

	var out models.User
	if err := c.doer.DoJSON(ctx, http.MethodPost, "/users/register-neighbor", form.request(), &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// UpdateUser — PATCH /users/{id}. Пустой пароль не отправляется.
func (c *Client) UpdateUser(ctx context.Context, id int64, form ResidentForm) (*models.User, error) {
	const op = "api.UpdateUser"

	if strings.TrimSpace(form.Phone) == "" {
		return nil, invalid("phone", "Введите телефон")
	}
	if form.Password != "" && len([]rune(form.Password)) < MinPasswordLen {
		return nil, invalid("password", "Новый пароль должен быть не короче 6 символов")
	}

	var out models.User
	if err := c.doer.DoJSON(ctx, http.MethodPatch, "/users/"+strconv.FormatInt(id, 10), form.request(), &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// DeleteUser — DELETE /users/{id}.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	const op = "api.DeleteUser"

	if err := c.doer.DoJSON(ctx, http.MethodDelete, "/users/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
