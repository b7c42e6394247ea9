// api — типизированный клиент REST-бэкенда поверх gateway.
//
// Локальная проверка форм выполняется до сетевого вызова; её ошибки имеют
// тип *ValidationError и несут готовое сообщение для пользователя.
package api

import (
	"context"
	"fmt"

	"github.com/pribylovaa/upravdom-client/internal/gateway"
)

// MinPasswordLen — минимальная длина пароля.
const MinPasswordLen = 6

// Doer — транспорт запросов (реализуется *gateway.Gateway).
type Doer interface {
	DoJSON(ctx context.Context, method, path string, in, out any, opts ...gateway.Option) error
}

// Client — клиент бэкенда.
type Client struct {
	doer Doer
}

// New создаёт клиент поверх транспорта.
func New(doer Doer) *Client {
	return &Client{doer: doer}
}

// ValidationError — данные формы не прошли локальную проверку.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// UserMessage — текст для пользователя.
func (e *ValidationError) UserMessage() string { return e.Message }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
