package interceptors

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

// CtxRequestID — ключ контекста для x-request-id логической операции.
const CtxRequestID ctxKey = "request_id"

// HeaderRequestID — заголовок, по которому бэкенд коррелирует логи.
const HeaderRequestID = "X-Request-Id"

// WithRequestID кладёт request id в контекст. Все попытки одного логического
// запроса (исходная, refresh и повтор) идут с одним id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxRequestID, id)
}

// RequestIDFrom достаёт request id из контекста.
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(CtxRequestID).(string); ok {
		return v
	}

	return ""
}

// ClientWithMetadata добавляет в исходящий запрос заголовки:
//   - X-Request-Id (из контекста, из уже выставленного заголовка или новый uuid);
//   - User-Agent (если передан параметром и не задан вызывающим).
//
// Authorization здесь не трогаем: этим владеет gateway.
func ClientWithMetadata(userAgent string) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			rid := r.Header.Get(HeaderRequestID)
			if rid == "" {
				rid = RequestIDFrom(r.Context())
			}
			if rid == "" {
				rid = uuid.NewString()
			}

			// RoundTripper не должен менять исходный запрос.
			out := r.Clone(WithRequestID(r.Context(), rid))
			out.Header.Set(HeaderRequestID, rid)
			if userAgent != "" && out.Header.Get("User-Agent") == "" {
				out.Header.Set("User-Agent", userAgent)
			}

			return next.RoundTrip(out)
		})
	}
}
