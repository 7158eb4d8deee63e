package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/handlers"
	"github.com/Daytron/revworks-sub001/internal/logging"
	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/pool"
	"github.com/Daytron/revworks-sub001/internal/pool/pooltest"
	"github.com/Daytron/revworks-sub001/internal/repository"
	"github.com/Daytron/revworks-sub001/internal/router"
	"github.com/Daytron/revworks-sub001/internal/services"
	"github.com/Daytron/revworks-sub001/internal/session"
	"github.com/Daytron/revworks-sub001/internal/worker"
)

type fixedCounts struct{}

func (fixedCounts) CountForLecturer(ctx context.Context, id uuid.UUID) (repository.StatusCounts, error) {
	return repository.StatusCounts{Pending: 2}, nil
}

func (fixedCounts) CountForStudent(ctx context.Context, id uuid.UUID) (repository.StatusCounts, error) {
	return repository.StatusCounts{Reviewed: 1}, nil
}

type app struct {
	handler    http.Handler
	registry   *session.Registry
	supervisor *worker.Supervisor
	jwt        *middleware.JWTAuth
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := logging.Discard()
	bus := events.NewBus(logger)

	gw, err := pool.NewGateway(&pooltest.Source{}, 2, time.Second, logger)
	require.NoError(t, err)

	sup := worker.NewSupervisor(worker.Options{StopTimeout: time.Second, Logger: logger, Events: bus})
	reg := session.NewRegistry(sup, session.Options{SingleSession: true, Logger: logger, Events: bus})
	jwtAuth := middleware.NewJWTAuth("router-test-secret", reg)
	t.Cleanup(func() { sup.Shutdown(context.Background()) })

	views := services.NewViewService(sup, fixedCounts{}, bus, time.Hour, logger)

	h := router.New(jwtAuth, middleware.NewRateLimiter(100, time.Minute), router.Handlers{
		Views:  handlers.NewViewHandler(views),
		Health: handlers.NewHealthHandler(gw, reg, sup),
	}, "http://localhost:5173")

	return &app{handler: h, registry: reg, supervisor: sup, jwt: jwtAuth}
}

func (a *app) signIn(t *testing.T, p models.Principal) string {
	t.Helper()
	h, err := a.registry.SignIn(context.Background(), p)
	require.NoError(t, err)
	token, err := a.jwt.GenerateAccessToken(h)
	require.NoError(t, err)
	return token
}

func (a *app) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	a := newApp(t)

	rec := a.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = a.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newApp(t)

	for _, path := range []string{
		"/api/v1/views/lecturer-dashboard/enter",
		"/api/v1/auth/logout",
	} {
		rec := a.do(http.MethodPost, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec), path)
	}
}

func TestEnterAndExitView(t *testing.T) {
	a := newApp(t)
	token := a.signIn(t, models.Principal{AccountID: uuid.New(), Kind: models.KindLecturer, ExternalID: "hale@uni.example"})

	rec := a.do(http.MethodPost, "/api/v1/views/lecturer-dashboard/enter", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, a.supervisor.Count())

	rec = a.do(http.MethodPost, "/api/v1/views/lecturer-dashboard/exit", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stopped_tasks":1`)
	assert.Equal(t, 0, a.supervisor.Count())
}

func TestSecondLoginInvalidatesFirstToken(t *testing.T) {
	a := newApp(t)
	p := models.Principal{AccountID: uuid.New(), Kind: models.KindLecturer, ExternalID: "hale@uni.example"}

	first := a.signIn(t, p)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/views/lecturer-dashboard/enter", first).Code)

	second := a.signIn(t, p)

	rec := a.do(http.MethodPost, "/api/v1/views/lecturer-dashboard/enter", first)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_NOT_ACTIVE", errorCode(t, rec))
	assert.Equal(t, 0, a.supervisor.Count(), "evicted session's poller was stopped")

	rec = a.do(http.MethodPost, "/api/v1/views/lecturer-dashboard/enter", second)
	assert.Equal(t, http.StatusOK, rec.Code)
}
