// tokenstore хранит пару токенов сессии на устройстве.
//
// Контракт Store минимален (Get/Set/Delete по строковому ключу) и повторяет
// интерфейс защищённого хранилища мобильного клиента: ключи "accessToken" и
// "refreshToken", строковые значения, без синхронизации между устройствами.
//
// Параллельный доступ: реализации потокобезопасны, но записи разных путей
// (login, refresh, logout, bootstrap) не сериализуются между собой:
// побеждает последняя запись.
package tokenstore

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// Ключи защищённого хранилища.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Store — защищённое key/value-хранилище устройства.
type Store interface {
	// Get возвращает значение и признак его наличия.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set записывает значение (перезаписывает существующее).
	Set(ctx context.Context, key, value string) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не является.
	Delete(ctx context.Context, key string) error
}

// SavePair записывает пару токенов: сначала access, затем refresh.
//
// Это два отдельных вызова хранилища: сбой между ними оставит новый access
// рядом со старым refresh. Атомарность не гарантируется.
func SavePair(ctx context.Context, s Store, p models.TokenPair) error {
	const op = "tokenstore.SavePair"

	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.Set(ctx, KeyAccessToken, p.AccessToken); err != nil {
		return fmt.Errorf("%s: access: %w", op, err)
	}

	if err := s.Set(ctx, KeyRefreshToken, p.RefreshToken); err != nil {
		return fmt.Errorf("%s: refresh: %w", op, err)
	}

	return nil
}

// LoadPair читает обе половины пары. ok=true только если присутствуют обе.
func LoadPair(ctx context.Context, s Store) (models.TokenPair, bool, error) {
	const op = "tokenstore.LoadPair"

	access, okA, err := s.Get(ctx, KeyAccessToken)
	if err != nil {
		return models.TokenPair{}, false, fmt.Errorf("%s: access: %w", op, err)
	}

	refresh, okR, err := s.Get(ctx, KeyRefreshToken)
	if err != nil {
		return models.TokenPair{}, false, fmt.Errorf("%s: refresh: %w", op, err)
	}

	p := models.TokenPair{AccessToken: access, RefreshToken: refresh}
	return p, okA && okR, nil
}

// Clear удаляет оба токена. Удаление второго выполняется даже при ошибке первого.
func Clear(ctx context.Context, s Store) error {
	const op = "tokenstore.Clear"

	errA := s.Delete(ctx, KeyAccessToken)
	errR := s.Delete(ctx, KeyRefreshToken)

	if err := errors.Join(errA, errR); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
