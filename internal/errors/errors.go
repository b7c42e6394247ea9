// errors стандартизирует ошибки, которые клиент получает от бэкенда.
// На вход он принимает HTTP-ответ с не-2xx статусом, а на выход даёт:
//   - *Error с исходным статусом и сообщением бэкенда;
//   - классификацию (Kind) для решения, что делать дальше: обновлять токены,
//     показывать сообщение или просто повторить позже.
//
// Формат тела ошибки бэкенда: {"message": "..."} либо {"message": ["...", "..."]}
// (валидация DTO). Поддерживается и конверт {"error": {"message": "..."}}.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Сентинелы для errors.Is; *Error сопоставляется с ними по статусу.
var (
	// ErrUnauthorized — 401: access-токен отсутствует, просрочен или отозван.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden — 403: у роли нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound — 404.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest — 400/409/422: бэкенд отверг данные.
	ErrBadRequest = errors.New("bad request")
	// ErrServer — 5xx.
	ErrServer = errors.New("server error")
)

// maxErrorBody — сколько байт тела ошибки читаем максимум.
const maxErrorBody = 64 << 10

// Error — ошибка бэкенда с исходным HTTP-статусом.
// Message — текст из тела ответа, пригодный для показа пользователю как есть.
type Error struct {
	Status  int
	Message string
	Method  string
	Path    string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}

	if e.Method == "" && e.Path == "" {
		return fmt.Sprintf("backend: %d: %s", e.Status, msg)
	}

	return fmt.Sprintf("backend: %s %s: %d: %s", e.Method, e.Path, e.Status, msg)
}

// Is сопоставляет статус с сентинелами пакета.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest ||
			e.Status == http.StatusConflict ||
			e.Status == http.StatusUnprocessableEntity
	case ErrServer:
		return e.Status >= http.StatusInternalServerError
	}

	return false
}

// body — допустимые формы тела ошибки.
type body struct {
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// FromResponse строит *Error из ответа с ошибочным статусом.
// Тело читается (не более maxErrorBody) и закрывается.
func FromResponse(resp *http.Response) *Error {
	e := &Error{Status: resp.StatusCode}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		if resp.Request.URL != nil {
			e.Path = resp.Request.URL.Path
		}
	}

	if resp.Body == nil {
		return e
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return e
	}
	// Дочитываем остаток, чтобы соединение вернулось в пул.
	_, _ = io.Copy(io.Discard, resp.Body)

	e.Message = parseMessage(raw)
	return e
}

// parseMessage вынимает сообщение из тела; для неизвестного формата пустая строка.
func parseMessage(raw []byte) string {
	var b body
	if err := json.Unmarshal(raw, &b); err != nil {
		return ""
	}

	if msg := decodeMessage(b.Message); msg != "" {
		return msg
	}

	// {"error": {"message": "..."}}; строковое поле error (NestJS: "Unauthorized")
	// сообщением не считаем.
	if len(b.Error) > 0 && b.Error[0] == '{' {
		var inner body
		if err := json.Unmarshal(b.Error, &inner); err == nil {
			return decodeMessage(inner.Message)
		}
	}

	return ""
}

func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := list[:0]
		for _, p := range list {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, "; ")
	}

	return ""
}

// Kind — класс ошибки с точки зрения клиента.
type Kind int

const (
	// KindOther — прочие ошибки (403/404, битый ответ, хранилище, отмена).
	KindOther Kind = iota
	// KindTransient — нет ответа (сеть, таймаут) или 5xx: состояние сессии не меняем.
	KindTransient
	// KindUnauthorized — 401 после (неудачной) попытки обновления токенов.
	KindUnauthorized
	// KindValidation — данные отвергнуты (локально или бэкендом, 4xx).
	KindValidation
)

// Validator — ошибки локальной валидации формы.
type Validator interface {
	error
	UserMessage() string
}

// KindOf классифицирует ошибку.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}

	var v Validator
	if errors.As(err, &v) {
		return KindValidation
	}

	var e *Error
	if !errors.As(err, &e) {
		if isTransport(err) {
			return KindTransient
		}
		return KindOther
	}

	switch {
	case errors.Is(e, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(e, ErrServer):
		return KindTransient
	case errors.Is(e, ErrBadRequest):
		return KindValidation
	default:
		return KindOther
	}
}

// isTransport — ответа не было: сеть, DNS, таймаут.
// Отмена контекста вызывающим сюда не относится.
func isTransport(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// UserMessage возвращает текст для пользователя: сообщение бэкенда или
// локальной валидации как есть, иначе fallback.
func UserMessage(err error, fallback string) string {
	var v Validator
	if errors.As(err, &v) {
		if msg := v.UserMessage(); msg != "" {
			return msg
		}
	}

	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}

	return fallback
}
