package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/upravdom-client/internal/api"
	"github.com/pribylovaa/upravdom-client/internal/config"
	"github.com/pribylovaa/upravdom-client/internal/gateway"
	"github.com/pribylovaa/upravdom-client/internal/session"
	"github.com/pribylovaa/upravdom-client/internal/tokenstore"
)

// Clients агрегирует хранилище токенов, gateway, REST-клиент и сессию.
type Clients struct {
	Tokens   tokenstore.Store
	Gateway  *gateway.Gateway
	API      *api.Client
	Session  *session.Session
	Registry *prometheus.Registry

	closers []io.Closer
}

// New собирает клиентов по конфигурации.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Clients, error) {
	const op = "internal/clients/New"

	store, closer, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()

	// Цепочка интерсепторов собирается внутри gateway: metadata -> timeout -> logging.
	gw, err := gateway.New(gateway.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		UserAgent:  cfg.API.UserAgent,
		Registerer: reg,
	}, store, log)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := api.New(gw)

	c := &Clients{
		Tokens:   store,
		Gateway:  gw,
		API:      client,
		Session:  session.New(store, client, log),
		Registry: reg,
	}
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	return c, nil
}

func newStore(ctx context.Context, cfg config.StorageConfig) (tokenstore.Store, io.Closer, error) {
	switch cfg.Kind {
	case config.StorageMemory:
		return tokenstore.NewMemory(), nil, nil
	case config.StorageRedis:
		r, err := tokenstore.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case config.StorageFile, "":
		dir, err := cfg.ResolveDir()
		if err != nil {
			return nil, nil, err
		}
		f, err := tokenstore.NewFile(dir)
		if err != nil {
			return nil, nil, err
		}
		return f, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

// WriteMetrics выгружает метрики в textfile (формат node_exporter).
// При пустом пути ничего не делает.
func (c *Clients) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}

// Close закрывает открытые соединения.
func (c *Clients) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
