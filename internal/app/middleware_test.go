package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vantage-bm/vantage/internal/shared"
)

type stackFixture struct {
	router      chi.Router
	writeCalled *bool
}

func newStackFixture(t *testing.T) *stackFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "development", AppRequestTimeout: 5 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         cfg,
		SessionManager: shared.NewSessionManager(client, "vantage_session", "session-secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf-secret"),
	})

	router := chi.NewRouter()
	router.Use(stack...)

	called := false
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	return &stackFixture{router: router, writeCalled: &called}
}

func (f *stackFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestStackIssuesCSRFTokenOnSafeRequests(t *testing.T) {
	f := newStackFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(shared.CSRFHeader))
	require.NotEmpty(t, rec.Result().Cookies())
}

func TestStackAllowsWriteWithIssuedToken(t *testing.T) {
	f := newStackFixture(t)

	get := f.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	token := get.Header().Get(shared.CSRFHeader)
	require.NotEmpty(t, token)

	post := httptest.NewRequest(http.MethodPost, "/echo", nil)
	for _, c := range get.Result().Cookies() {
		post.AddCookie(c)
	}
	post.Header.Set(shared.CSRFHeader, token)

	rec := f.do(post)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, *f.writeCalled)

	// The token is stable for the session, not rotated per request.
	again := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for _, c := range get.Result().Cookies() {
		again.AddCookie(c)
	}
	require.Equal(t, token, f.do(again).Header().Get(shared.CSRFHeader))
}

func TestStackRejectsWriteWithoutToken(t *testing.T) {
	f := newStackFixture(t)

	get := f.do(httptest.NewRequest(http.MethodGet, "/ping", nil))

	post := httptest.NewRequest(http.MethodPost, "/echo", nil)
	for _, c := range get.Result().Cookies() {
		post.AddCookie(c)
	}

	rec := f.do(post)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, *f.writeCalled)
}

func TestStackRejectsWriteWithWrongToken(t *testing.T) {
	f := newStackFixture(t)

	get := f.do(httptest.NewRequest(http.MethodGet, "/ping", nil))

	post := httptest.NewRequest(http.MethodPost, "/echo", nil)
	for _, c := range get.Result().Cookies() {
		post.AddCookie(c)
	}
	post.Header.Set(shared.CSRFHeader, "forged")

	rec := f.do(post)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, *f.writeCalled)
}
