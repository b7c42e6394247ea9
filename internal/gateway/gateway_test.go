package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/upravdom-client/internal/backendtest"
	"github.com/pribylovaa/upravdom-client/internal/clients/interceptors"
	apierrors "github.com/pribylovaa/upravdom-client/internal/errors"
	"github.com/pribylovaa/upravdom-client/internal/models"
	"github.com/pribylovaa/upravdom-client/internal/tokenstore"
)

var admin = models.Identity{ID: 1, Phone: "+79990000001", Role: models.RoleAdmin}

type fixture struct {
	srv    *backendtest.Server
	store  *tokenstore.Memory
	gw     *Gateway
	logBuf *bytes.Buffer
}

func newFixture(t *testing.T, transport http.RoundTripper) *fixture {
	t.Helper()

	srv := backendtest.New(t)
	srv.AddUser(admin, "secret1")

	buf := &bytes.Buffer{}
	store := tokenstore.NewMemory()
	gw, err := New(Config{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		UserAgent:  "upravdom-test",
		Transport:  transport,
		Registerer: prometheus.NewRegistry(),
	}, store, slog.New(slog.NewJSONHandler(buf, nil)))
	require.NoError(t, err)

	return &fixture{srv: srv, store: store, gw: gw, logBuf: buf}
}

func (f *fixture) seed(t *testing.T, p models.TokenPair) {
	t.Helper()
	require.NoError(t, tokenstore.SavePair(context.Background(), f.store, p))
}

func (f *fixture) get(t *testing.T, path string, opts ...Option) (*http.Response, error) {
	t.Helper()

	req, err := f.gw.NewRequest(context.Background(), http.MethodGet, path, nil)
	require.NoError(t, err)

	resp, err := f.gw.Send(context.Background(), req, opts...)
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}

	return resp, err
}

func refreshCount(g *Gateway, result string) float64 {
	return testutil.ToFloat64(g.metrics.refresh.WithLabelValues(result))
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "localhost:3000", "/relative", "http://"} {
		_, err := New(Config{BaseURL: u}, tokenstore.NewMemory(), nil)
		require.ErrorIs(t, err, ErrInvalidBaseURL, u)
	}
}

func TestURL_KeepsBasePathPrefix(t *testing.T) {
	t.Parallel()

	gw, err := New(Config{BaseURL: "http://api.local:3000/v1/"}, tokenstore.NewMemory(), nil)
	require.NoError(t, err)

	require.Equal(t, "http://api.local:3000/v1/auth/profile", gw.URL("/auth/profile"))
	require.Equal(t, "http://api.local:3000/v1/apartments/7", gw.URL("apartments/7"))
}

func TestSend_AttachesExactlyOneBearer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	pair := f.srv.IssuePair(admin.ID)
	f.seed(t, pair)

	req, err := f.gw.NewRequest(context.Background(), http.MethodGet, "/auth/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stale")

	resp, err := f.gw.Send(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	calls := f.srv.CallsTo(http.MethodGet, "/auth/profile")
	require.Len(t, calls, 1)
	require.Equal(t, []string{"Bearer " + pair.AccessToken}, calls[0].Authorization)
	require.NotEmpty(t, calls[0].RequestID)

	// Исходный запрос вызывающего не меняется.
	require.Equal(t, "Bearer stale", req.Header.Get("Authorization"))
}

func TestSend_NoTokens_SendsWithoutCredential(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	_, err := f.get(t, "/apartments")
	require.ErrorIs(t, err, apierrors.ErrUnauthorized)

	calls := f.srv.CallsTo(http.MethodGet, "/apartments")
	require.Len(t, calls, 1)
	require.Empty(t, calls[0].Authorization)

	require.Empty(t, f.srv.CallsTo(http.MethodPost, RefreshPath))
	require.Equal(t, 1.0, refreshCount(f.gw, refreshNoToken))
}

func TestSend_ExpiredAccess_RefreshesAndRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	old := f.srv.IssuePair(admin.ID)
	expired := f.srv.ExpiredAccess(admin.ID)
	f.seed(t, models.TokenPair{AccessToken: expired, RefreshToken: old.RefreshToken})

	resp, err := f.get(t, "/auth/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	id, err := models.DecodeIdentity(body)
	require.NoError(t, err)
	require.Equal(t, admin.ID, id.ID)

	calls := f.srv.Calls()
	require.Len(t, calls, 3)

	require.Equal(t, "/auth/profile", calls[0].Path)
	require.Equal(t, []string{"Bearer " + expired}, calls[0].Authorization)

	require.Equal(t, RefreshPath, calls[1].Path)
	require.Equal(t, http.MethodPost, calls[1].Method)
	require.Equal(t, []string{"Bearer " + old.RefreshToken}, calls[1].Authorization)
	require.Empty(t, calls[1].Body)

	snap := f.store.Snapshot()
	require.NotEqual(t, expired, snap[tokenstore.KeyAccessToken])
	require.NotEqual(t, old.RefreshToken, snap[tokenstore.KeyRefreshToken])

	require.Equal(t, "/auth/profile", calls[2].Path)
	require.Equal(t, []string{"Bearer " + snap[tokenstore.KeyAccessToken]}, calls[2].Authorization)

	// Все попытки одной операции коррелируются одним request id.
	require.Equal(t, calls[0].RequestID, calls[1].RequestID)
	require.Equal(t, calls[0].RequestID, calls[2].RequestID)

	require.Equal(t, 1.0, refreshCount(f.gw, refreshOK))
	require.Contains(t, f.logBuf.String(), `"msg":"refresh_ok"`)
	require.NotContains(t, f.logBuf.String(), snap[tokenstore.KeyAccessToken])
}

func TestSend_RefreshRejected_ClearsTokensAndReturnsOriginal401(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	old := f.srv.IssuePair(admin.ID)
	f.srv.RevokeRefresh(old.RefreshToken)
	f.seed(t, models.TokenPair{AccessToken: f.srv.ExpiredAccess(admin.ID), RefreshToken: old.RefreshToken})

	_, err := f.get(t, "/auth/profile")
	require.ErrorIs(t, err, apierrors.ErrUnauthorized)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.MethodGet, apiErr.Method)
	require.Equal(t, "/auth/profile", apiErr.Path)
	require.Equal(t, "Unauthorized", apiErr.Message)

	require.Empty(t, f.store.Snapshot())
	require.Len(t, f.srv.CallsTo(http.MethodGet, "/auth/profile"), 1)
	require.Len(t, f.srv.CallsTo(http.MethodPost, RefreshPath), 1)

	require.Equal(t, 1.0, refreshCount(f.gw, refreshRejected))
	require.Contains(t, f.logBuf.String(), `"msg":"refresh_rejected"`)
	require.NotContains(t, f.logBuf.String(), old.RefreshToken)
}

func TestSend_UnauthorizedAfterRefresh_NotRefreshedAgain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, f.srv.IssuePair(admin.ID))
	f.srv.RejectAccess(true)

	_, err := f.get(t, "/auth/profile")
	require.ErrorIs(t, err, apierrors.ErrUnauthorized)

	require.Len(t, f.srv.CallsTo(http.MethodGet, "/auth/profile"), 2)
	require.Len(t, f.srv.CallsTo(http.MethodPost, RefreshPath), 1)

	// Обновление удалось, поэтому новая пара остаётся в хранилище.
	_, ok, err := tokenstore.LoadPair(context.Background(), f.store)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSend_WithoutRefresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	pair := models.TokenPair{AccessToken: f.srv.ExpiredAccess(admin.ID), RefreshToken: f.srv.IssuePair(admin.ID).RefreshToken}
	f.seed(t, pair)

	_, err := f.get(t, "/auth/profile", WithoutRefresh())
	require.ErrorIs(t, err, apierrors.ErrUnauthorized)

	require.Empty(t, f.srv.CallsTo(http.MethodPost, RefreshPath))
	require.Equal(t, map[string]string{
		tokenstore.KeyAccessToken:  pair.AccessToken,
		tokenstore.KeyRefreshToken: pair.RefreshToken,
	}, f.store.Snapshot())
}

func TestSend_OtherErrorsPropagateWithoutRefresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, f.srv.IssuePair(admin.ID))
	f.srv.FailNext(http.MethodGet, "/apartments", http.StatusInternalServerError, "db down")
	f.srv.FailNext(http.MethodGet, "/apartments/9", http.StatusNotFound, "Квартира не найдена")

	_, err := f.get(t, "/apartments")
	require.ErrorIs(t, err, apierrors.ErrServer)
	require.Equal(t, apierrors.KindTransient, apierrors.KindOf(err))

	_, err = f.get(t, "/apartments/9")
	require.ErrorIs(t, err, apierrors.ErrNotFound)
	require.Equal(t, "Квартира не найдена", apierrors.UserMessage(err, ""))

	require.Empty(t, f.srv.CallsTo(http.MethodPost, RefreshPath))
	require.Equal(t, 1.0, testutil.ToFloat64(f.gw.metrics.requests.WithLabelValues(http.MethodGet, "500")))
}

func TestSend_RefreshTransportFailure_ClearsTokens(t *testing.T) {
	t.Parallel()

	down := errors.New("network is unreachable")
	transport := interceptors.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == RefreshPath {
			return nil, down
		}
		return http.DefaultTransport.RoundTrip(r)
	})

	f := newFixture(t, transport)
	pair := models.TokenPair{AccessToken: f.srv.ExpiredAccess(admin.ID), RefreshToken: f.srv.IssuePair(admin.ID).RefreshToken}
	f.seed(t, pair)

	_, err := f.get(t, "/auth/profile")
	require.ErrorIs(t, err, apierrors.ErrUnauthorized)
	require.Equal(t, apierrors.KindUnauthorized, apierrors.KindOf(err))

	require.Empty(t, f.store.Snapshot())
	require.Equal(t, 1.0, refreshCount(f.gw, refreshFailed))
	require.Equal(t, 1.0, testutil.ToFloat64(f.gw.metrics.requests.WithLabelValues(http.MethodPost, "error")))
	require.Contains(t, f.logBuf.String(), `"msg":"refresh_failed"`)
	require.NotContains(t, f.logBuf.String(), pair.RefreshToken)
}

func TestSend_RefreshLogsCarryRequestID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, models.TokenPair{AccessToken: f.srv.ExpiredAccess(admin.ID), RefreshToken: f.srv.IssuePair(admin.ID).RefreshToken})

	ctx := interceptors.WithRequestID(context.Background(), "rid-42")
	req, err := f.gw.NewRequest(ctx, http.MethodGet, "/auth/profile", nil)
	require.NoError(t, err)

	resp, err := f.gw.Send(ctx, req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var found bool
	for _, line := range bytes.Split(f.logBuf.Bytes(), []byte("\n")) {
		if bytes.Contains(line, []byte(`"msg":"refresh_ok"`)) {
			found = true
			require.Contains(t, string(line), `"request_id":"rid-42"`)
		}
	}
	require.True(t, found, f.logBuf.String())
}

func TestSend_RefreshServerError_ClearsTokens(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, models.TokenPair{AccessToken: f.srv.ExpiredAccess(admin.ID), RefreshToken: f.srv.IssuePair(admin.ID).RefreshToken})
	f.srv.FailNext(http.MethodPost, RefreshPath, http.StatusServiceUnavailable, "maintenance")

	_, err := f.get(t, "/apartments")
	require.ErrorIs(t, err, apierrors.ErrUnauthorized)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "/apartments", apiErr.Path)

	require.Empty(t, f.store.Snapshot())
	require.Len(t, f.srv.CallsTo(http.MethodGet, "/apartments"), 1)
	require.Equal(t, 1.0, refreshCount(f.gw, refreshRejected))
}

// clearingStore удаляет access-токен сразу после записи новой пары, как
// конкурентный запрос, чьё обновление было отвергнуто.
type clearingStore struct {
	*tokenstore.Memory
}

func (s clearingStore) Set(ctx context.Context, key, value string) error {
	if err := s.Memory.Set(ctx, key, value); err != nil {
		return err
	}
	if key == tokenstore.KeyRefreshToken {
		return s.Memory.Delete(ctx, tokenstore.KeyAccessToken)
	}
	return nil
}

func TestSend_RetryUsesFreshAccessToken(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t)
	srv.AddUser(admin, "secret1")

	store := clearingStore{Memory: tokenstore.NewMemory()}
	gw, err := New(Config{BaseURL: srv.URL}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	old := srv.IssuePair(admin.ID)
	require.NoError(t, store.Memory.Set(context.Background(), tokenstore.KeyAccessToken, srv.ExpiredAccess(admin.ID)))
	require.NoError(t, store.Memory.Set(context.Background(), tokenstore.KeyRefreshToken, old.RefreshToken))

	var id models.Identity
	require.NoError(t, gw.DoJSON(context.Background(), http.MethodGet, "/auth/profile", nil, &id))
	require.Equal(t, admin.ID, id.ID)

	calls := srv.CallsTo(http.MethodGet, "/auth/profile")
	require.Len(t, calls, 2)
	require.Len(t, calls[1].Authorization, 1)
	require.NotEqual(t, calls[0].Authorization, calls[1].Authorization)
	require.NotEqual(t, "Bearer ", calls[1].Authorization[0])

	_, ok := store.Snapshot()[tokenstore.KeyAccessToken]
	require.False(t, ok, "retry must not depend on the store re-read")
}

func TestSend_TransportErrorIsTransient(t *testing.T) {
	t.Parallel()

	transport := interceptors.RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	f := newFixture(t, transport)
	f.seed(t, models.TokenPair{AccessToken: "a", RefreshToken: "r"})

	_, err := f.get(t, "/apartments")
	require.Error(t, err)
	require.Equal(t, apierrors.KindTransient, apierrors.KindOf(err))
	require.Equal(t, 0.0, refreshCount(f.gw, refreshFailed))
	require.Len(t, f.store.Snapshot(), 2)
}

func TestDoJSON_ReplaysBodyOnRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, models.TokenPair{
		AccessToken:  f.srv.ExpiredAccess(admin.ID),
		RefreshToken: f.srv.IssuePair(admin.ID).RefreshToken,
	})

	var created models.Category
	err := f.gw.DoJSON(context.Background(), http.MethodPost, "/categories",
		models.CreateCategoryRequest{Name: "Вода"}, &created)
	require.NoError(t, err)
	require.Equal(t, "Вода", created.Name)
	require.NotZero(t, created.ID)

	calls := f.srv.CallsTo(http.MethodPost, "/categories")
	require.Len(t, calls, 2)
	require.JSONEq(t, `{"name":"Вода"}`, string(calls[0].Body))
	require.Equal(t, calls[0].Body, calls[1].Body)
}

func TestSend_ReplaysNonRewindableBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, models.TokenPair{
		AccessToken:  f.srv.ExpiredAccess(admin.ID),
		RefreshToken: f.srv.IssuePair(admin.ID).RefreshToken,
	})

	req, err := f.gw.NewRequest(context.Background(), http.MethodPost, "/categories",
		io.NopCloser(bytes.NewBufferString(`{"name":"Лифт"}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	require.Nil(t, req.GetBody)

	resp, err := f.gw.Send(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	calls := f.srv.CallsTo(http.MethodPost, "/categories")
	require.Len(t, calls, 2)
	require.Equal(t, `{"name":"Лифт"}`, string(calls[1].Body))
}

func TestDoJSON_NoContent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, f.srv.IssuePair(admin.ID))
	f.srv.AddCategory(models.Category{ID: 7, Name: "Уборка"})

	var out map[string]any
	require.NoError(t, f.gw.DoJSON(context.Background(), http.MethodDelete, "/categories/7", nil, &out))
	require.Nil(t, out)
}

func TestSend_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seed(t, f.srv.IssuePair(admin.ID))

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- f.gw.DoJSON(context.Background(), http.MethodGet, "/apartments", nil, &[]models.Apartment{})
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, float64(n), testutil.ToFloat64(f.gw.metrics.requests.WithLabelValues(http.MethodGet, "200")))
}
