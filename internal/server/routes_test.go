package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/maauso/upload-broker/internal/auth"
	"github.com/maauso/upload-broker/internal/grant"
	"github.com/maauso/upload-broker/internal/reservation"
	"github.com/maauso/upload-broker/internal/storage"
)

const testBucketURL = "https://bucket.s3.ap-southeast-1.amazonaws.com"

// fakeGateway presigns every request and records deletes.
type fakeGateway struct {
	mu      sync.Mutex
	deleted []string
}

func (g *fakeGateway) PresignUpload(_ context.Context, key, contentType string, _ time.Duration) (*storage.PresignedUpload, error) {
	return &storage.PresignedUpload{
		URL: testBucketURL,
		Fields: map[string]string{
			"key":          key,
			"acl":          storage.ACLPublicRead,
			"Content-Type": contentType,
		},
	}, nil
}

func (g *fakeGateway) DeleteObject(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, key)
	return nil
}

func (g *fakeGateway) deletedKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deleted...)
}

type routerEnv struct {
	router    http.Handler
	gateway   *fakeGateway
	table     *reservation.Table
	clock     *clocktesting.FakeClock
	validator *mockValidator
	store     *mockStore
}

func newRouterEnv(t *testing.T, cfg Config) *routerEnv {
	t.Helper()
	logger := testLogger()
	gw := &fakeGateway{}
	fc := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	reg := prometheus.NewRegistry()
	observer, err := reservation.NewPrometheusObserver("", reg)
	require.NoError(t, err)

	table := reservation.NewTable(gw, time.Second,
		reservation.WithClock(fc),
		reservation.WithLogger(logger),
		reservation.WithObserver(observer),
	)
	t.Cleanup(func() { table.Shutdown() })

	svc := grant.NewService(gw, table, logger, grant.WithExpiration(time.Second))
	store := &mockStore{}
	v := &mockValidator{}
	v.On("Validate", mock.Anything, "Bearer good").Return(nil)
	v.On("Validate", mock.Anything, "").Return(auth.ErrMissingToken)

	cfg.Gatherer = reg
	h := NewHandlers(svc, store, logger)
	return &routerEnv{
		router:    NewRouter(h, v, logger, cfg),
		gateway:   gw,
		table:     table,
		clock:     fc,
		validator: v,
		store:     store,
	}
}

func (e *routerEnv) do(method, target, body string, authorized bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer good")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_GrantLifecycle(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())

	rec := env.do(http.MethodGet, "/presigned-url?filename=report%20final.docx", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var grantResp PresignedURLResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&grantResp))
	assert.Equal(t, testBucketURL, grantResp.URL)
	assert.Regexp(t, `^assets/[0-9a-f-]{36}_reportfinal\.docx$`, grantResp.Fields["key"])
	assert.Equal(t, "multipart/form-data", grantResp.Fields["Content-Type"])
	assert.Equal(t, testBucketURL+"/"+grantResp.Fields["key"], grantResp.Location)
	assert.Equal(t, 1, env.table.Len())

	body, _ := json.Marshal(CallbackRequest{URL: grantResp.Location})
	rec = env.do(http.MethodPost, "/callback", string(body), true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.table.Len())

	rec = env.do(http.MethodPost, "/callback", string(body), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "URL not found", decodeError(t, rec).Error)
}

func TestRouter_UnfulfilledGrantExpires(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())

	rec := env.do(http.MethodGet, "/presigned-url?filename=photo.png", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var grantResp PresignedURLResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&grantResp))
	assert.Equal(t, "image/png", grantResp.Fields["Content-Type"])

	env.clock.Step(1500 * time.Millisecond)
	assert.Eventually(t, func() bool { return env.table.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{grantResp.Fields["key"]}, env.gateway.deletedKeys())

	body, _ := json.Marshal(CallbackRequest{URL: grantResp.Location})
	rec = env.do(http.MethodPost, "/callback", string(body), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CallbackUnknown(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())

	rec := env.do(http.MethodPost, "/callback", `{"url":"<unknown>"}`, true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "URL not found", decodeError(t, rec).Error)
}

func TestRouter_AuthenticationRequired(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/"},
		{http.MethodGet, "/presigned-url?filename=a.png"},
		{http.MethodPost, "/callback"},
		{http.MethodPost, "/upload"},
		{http.MethodDelete, "/delete-files"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := env.do(rt.method, rt.path, "", false)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Equal(t, 0, env.table.Len())
}

func TestRouter_PublicRoutes(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())

	rec := env.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.do(http.MethodGet, "/presigned-url?filename=a.png", "", true)

	rec = env.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "upload_broker_reservations_created_total 1")
	assert.Contains(t, rec.Body.String(), "upload_broker_reservations_live 1")
}

func TestRouter_Index(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())

	rec := env.do(http.MethodGet, "/", "", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultBanner, rec.Body.String())
}

func TestRouter_DeleteFiles(t *testing.T) {
	env := newRouterEnv(t, DefaultConfig())
	env.store.On("DeleteObjects", mock.Anything, []string{"attachments/a.png"}).Return(nil)

	rec := env.do(http.MethodDelete, "/delete-files", `{"fileKeys":["attachments/a.png"]}`, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	env.store.AssertExpectations(t)
}

func TestRouter_GrantRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GrantRateLimit = RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
	env := newRouterEnv(t, cfg)

	rec := env.do(http.MethodGet, "/presigned-url?filename=a.png", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/presigned-url?filename=a.png", "", true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, env.table.Len())

	// Callbacks are not rate limited.
	rec = env.do(http.MethodPost, "/callback", `{"url":"<unknown>"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://example.com"}
	env := newRouterEnv(t, cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Preflight is answered before authentication.
	req = httptest.NewRequest(http.MethodOptions, "/presigned-url", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	env.validator.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)

	// Disallowed origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
