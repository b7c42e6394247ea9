package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/pribylovaa/upravdom-client/internal/errors"
	"github.com/pribylovaa/upravdom-client/internal/models"
	"github.com/pribylovaa/upravdom-client/internal/tokenstore"
	logctx "github.com/pribylovaa/upravdom-client/pkg/log"
	"github.com/pribylovaa/upravdom-client/pkg/redact"
)

// RefreshPath — эндпойнт обновления пары токенов.
const RefreshPath = "/auth/refresh"

// ErrNoRefreshToken — в хранилище нет refresh-токена.
var ErrNoRefreshToken = errors.New("no refresh token")

// refresh обновляет пару токенов и возвращает новую.
//
//   - нет refresh-токена: ErrNoRefreshToken, хранилище не меняется;
//   - вызов /auth/refresh не удался (ошибочный статус, в том числе 5xx, нет
//     ответа, битое тело): обе записи удаляются, сессия завершена.
func (g *Gateway) refresh(ctx context.Context) (models.TokenPair, error) {
	const op = "gateway.refresh"

	log := logctx.From(ctx)

	rt, ok, err := g.tokens.Get(ctx, tokenstore.KeyRefreshToken)
	if err != nil {
		g.metrics.refreshResult(refreshFailed)
		log.Warn("refresh_failed", slog.String("err", err.Error()))
		return models.TokenPair{}, fmt.Errorf("%s: read refresh token: %w", op, err)
	}
	if !ok || rt == "" {
		g.metrics.refreshResult(refreshNoToken)
		log.Info("refresh_no_token")
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}

	pair, err := g.requestPair(ctx, rt)
	if err != nil {
		var apiErr *apierrors.Error
		if errors.As(err, &apiErr) {
			g.metrics.refreshResult(refreshRejected)
			log.Info("refresh_rejected",
				slog.Int("status", apiErr.Status),
				slog.String("refresh_token", redact.Token(rt)),
			)
		} else {
			g.metrics.refreshResult(refreshFailed)
			log.Warn("refresh_failed",
				slog.String("err", err.Error()),
				slog.String("refresh_token", redact.Token(rt)),
			)
		}

		if cerr := tokenstore.Clear(ctx, g.tokens); cerr != nil {
			log.Error("refresh_clear_failed", slog.String("err", cerr.Error()))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, errors.Join(err, cerr))
		}

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tokenstore.SavePair(ctx, g.tokens, pair); err != nil {
		g.metrics.refreshResult(refreshFailed)
		log.Error("refresh_save_failed", slog.String("err", err.Error()))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	g.metrics.refreshResult(refreshOK)

	attrs := []any{slog.String("access_token", redact.Token(pair.AccessToken))}
	if exp, ok := pair.AccessExpiresAt(); ok {
		attrs = append(attrs, slog.Time("access_expires_at", exp.UTC()))
	}
	log.Info("refresh_ok", attrs...)

	return pair, nil
}

// requestPair вызывает POST /auth/refresh напрямую, минуя Send: запрос
// несёт refresh-токен и access-токен к нему не подставляется.
// Ошибочный статус возвращается как *apierrors.Error.
func (g *Gateway) requestPair(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	req, err := g.NewRequest(ctx, http.MethodPost, RefreshPath, http.NoBody)
	if err != nil {
		return models.TokenPair{}, err
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.request(req.Method, 0)
		return models.TokenPair{}, err
	}
	g.metrics.request(req.Method, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		return models.TokenPair{}, apierrors.FromResponse(resp)
	}
	defer resp.Body.Close()

	var pair models.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("decode token pair: %w", err)
	}
	if err := pair.Validate(); err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh response: %w", err)
	}

	return pair, nil
}
