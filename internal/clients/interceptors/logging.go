package interceptors

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/upravdom-client/pkg/log"
)

// ClientLoggingInterceptor — логирование исходящих HTTP-вызовов.
// Поведение:
//   - обогащает логгер полями request_id/method/path и прокладывает его в контекст;
//   - пишет одну финальную запись уровня Info: msg="http", status, dur
//     (при ошибке транспорта Warn с err).
//
// Безопасность: не логирует тела и заголовки (Authorization в том числе).
func ClientLoggingInterceptor(base *slog.Logger) Interceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			rid := r.Header.Get(HeaderRequestID)
			if rid == "" {
				rid = RequestIDFrom(r.Context())
			}

			l := base.With(
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			r = r.WithContext(logctx.Into(r.Context(), l))

			resp, err := next.RoundTrip(r)
			if err != nil {
				l.Warn("http",
					slog.String("err", err.Error()),
					slog.Duration("dur", time.Since(start)),
				)
				return nil, err
			}

			l.Info("http",
				slog.Int("status", resp.StatusCode),
				slog.Duration("dur", time.Since(start)),
			)

			return resp, nil
		})
	}
}
