// gateway — единственная точка выхода клиента к бэкенду.
//
// Каждый запрос получает access-токен из хранилища. На 401 gateway один раз
// обновляет пару через POST /auth/refresh и повторяет исходный запрос.
// Если вызов обновления не удался, обе записи удаляются из хранилища, а
// вызывающий получает исходную ошибку 401.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/upravdom-client/internal/clients/interceptors"
	apierrors "github.com/pribylovaa/upravdom-client/internal/errors"
	"github.com/pribylovaa/upravdom-client/internal/tokenstore"
	logctx "github.com/pribylovaa/upravdom-client/pkg/log"
)

// ErrInvalidBaseURL — базовый адрес бэкенда не задан или не абсолютный.
var ErrInvalidBaseURL = errors.New("invalid base url")

// Config — параметры gateway.
type Config struct {
	// BaseURL — адрес бэкенда, например http://localhost:3000.
	BaseURL string
	// Timeout на одну попытку запроса; <= 0 без таймаута.
	Timeout   time.Duration
	UserAgent string
	// Transport — базовый транспорт под цепочкой интерсепторов (nil — DefaultTransport).
	Transport http.RoundTripper
	// Registerer для метрик; при nil метрики не регистрируются.
	Registerer prometheus.Registerer
}

// Gateway — обёртка над http.Client с подстановкой токенов и обновлением пары.
// Безопасен для конкурентного использования.
type Gateway struct {
	base    *url.URL
	client  *http.Client
	tokens  tokenstore.Store
	log     *slog.Logger
	metrics *metrics
}

// New собирает gateway: metadata -> timeout -> logging поверх cfg.Transport.
func New(cfg Config, tokens tokenstore.Store, log *slog.Logger) (*Gateway, error) {
	const op = "gateway.New"

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidBaseURL, cfg.BaseURL)
	}

	if log == nil {
		log = slog.Default()
	}

	transport := interceptors.Chain(cfg.Transport,
		interceptors.ClientWithMetadata(cfg.UserAgent),
		interceptors.ClientWithTimeout(cfg.Timeout),
		interceptors.ClientLoggingInterceptor(log),
	)

	return &Gateway{
		base:    base,
		client:  &http.Client{Transport: transport},
		tokens:  tokens,
		log:     log,
		metrics: newMetrics(cfg.Registerer),
	}, nil
}

// Option настраивает отдельный вызов Send.
type Option func(*sendOptions)

type sendOptions struct {
	noRefresh bool
}

// WithoutRefresh отключает обновление токенов для запроса: 401 возвращается
// вызывающему сразу. Используется для входа.
func WithoutRefresh() Option {
	return func(o *sendOptions) { o.noRefresh = true }
}

// URL строит абсолютный адрес эндпойнта относительно базового.
func (g *Gateway) URL(path string) string {
	u := *g.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// NewRequest — http.NewRequestWithContext с адресом относительно базового.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, g.URL(path), body)
}

// Send выполняет запрос от имени текущей сессии.
//
// Ответ со статусом < 400 возвращается как есть; тело закрывает вызывающий.
// Ошибочный статус превращается в *apierrors.Error, тело закрывается.
func (g *Gateway) Send(ctx context.Context, req *http.Request, opts ...Option) (*http.Response, error) {
	const op = "gateway.Send"

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if interceptors.RequestIDFrom(ctx) == "" {
		ctx = interceptors.WithRequestID(ctx, uuid.NewString())
	}
	ctx, _ = logctx.With(logctx.Into(ctx, g.log), slog.String("request_id", interceptors.RequestIDFrom(ctx)))

	if err := rewindable(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return g.dispatch(ctx, req, o.noRefresh, "")
}

// dispatch — одна попытка запроса. retried — флаг этой логической операции:
// после первого 401 повторная попытка идёт с retried=true и обновления
// больше не запускает. access — токен, только что выданный /auth/refresh;
// пустой означает чтение из хранилища.
func (g *Gateway) dispatch(ctx context.Context, req *http.Request, retried bool, access string) (*http.Response, error) {
	const op = "gateway.Send"

	var err error
	if access == "" {
		if access, _, err = g.tokens.Get(ctx, tokenstore.KeyAccessToken); err != nil {
			return nil, fmt.Errorf("%s: read access token: %w", op, err)
		}
	}

	out := req.Clone(ctx)
	if req.GetBody != nil {
		if out.Body, err = req.GetBody(); err != nil {
			return nil, fmt.Errorf("%s: rewind body: %w", op, err)
		}
	}
	if access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := g.client.Do(out)
	if err != nil {
		g.metrics.request(out.Method, 0)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.metrics.request(out.Method, resp.StatusCode)

	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	apiErr := apierrors.FromResponse(resp)
	if resp.StatusCode != http.StatusUnauthorized || retried {
		return nil, apiErr
	}

	pair, err := g.refresh(ctx)
	if err != nil {
		return nil, apiErr
	}

	return g.dispatch(ctx, req, true, pair.AccessToken)
}

// rewindable буферизует тело запроса, если его нельзя перечитать.
// Повтор после обновления токенов должен отправить то же тело.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(data))

	return nil
}

// DoJSON отправляет in как JSON (nil без тела) и декодирует ответ в out
// (nil — тело отбрасывается).
func (g *Gateway) DoJSON(ctx context.Context, method, path string, in, out any, opts ...Option) error {
	const op = "gateway.DoJSON"

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := g.NewRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.Send(ctx, req, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s %s: %w", op, method, path, err)
	}

	return nil
}
