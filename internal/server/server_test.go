package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"examprep/backend/internal/config"
	"examprep/backend/internal/handlers"
	"examprep/backend/internal/repository/memory"
)

func testServer(t *testing.T, proxies []string) (*HTTPServer, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{Host: "127.0.0.1", Port: 5055, TrustedProxies: proxies},
		Security: config.SecurityConfig{
			JWTSecret:  "server-test-secret",
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
	}
	set, err := handlers.NewHandlerSet(zerolog.Nop(), memory.NewStore(), nil, cfg)
	require.NoError(t, err)
	return NewHTTPServer(cfg, zerolog.Nop(), set)
}

func TestNewHTTPServer_Routes(t *testing.T) {
	srv, err := testServer(t, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5055", srv.Addr())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Ruta no encontrada"}`, rec.Body.String())
}

func TestNewHTTPServer_BadTrustedProxy(t *testing.T) {
	_, err := testServer(t, []string{"not-an-ip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trusted proxies")
}
