package models

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptyToken — в паре отсутствует один из токенов.
var ErrEmptyToken = errors.New("token pair is incomplete")

// TokenPair — пара токенов, выдаваемая /auth/login и /auth/refresh.
//
// Описание:
//   - AccessToken — короткоживущий bearer для вызовов API;
//   - RefreshToken — долгоживущий bearer, предъявляется только /auth/refresh.
//
// Оба токена для клиента непрозрачны; пара всегда пишется и удаляется целиком.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Validate отклоняет пару с пустым токеном.
func (p TokenPair) Validate() error {
	if p.AccessToken == "" || p.RefreshToken == "" {
		return ErrEmptyToken
	}

	return nil
}

// AccessExpiresAt извлекает claim exp из access-токена БЕЗ проверки подписи.
// Значение сугубо информационное (логи, вывод whoami); решения о валидности
// принимает только бэкенд. Для непрозрачных (не JWT) токенов ok=false.
func (p TokenPair) AccessExpiresAt() (time.Time, bool) {
	return TokenExpiresAt(p.AccessToken)
}

// TokenExpiresAt — то же для произвольного токена.
func TokenExpiresAt(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time.UTC(), true
}
