package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayurflow/clinic-api/internal/authz"
	"github.com/ayurflow/clinic-api/internal/handler"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/auth"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
)

const testSecret = "middleware-test-secret"

func authRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewAuthMiddleware(auth.NewVerifier(testSecret)).Authenticate())
	r.GET("/whoami", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func issueToken(t *testing.T, role string, ttl time.Duration) string {
	t.Helper()
	token, err := auth.NewVerifier(testSecret).Sign(&auth.Claims{
		UserID:   uuid.New(),
		ClinicID: uuid.New(),
		Role:     role,
	}, ttl)
	require.NoError(t, err)
	return token
}

func responseCode(t *testing.T, w *httptest.ResponseRecorder) apperrors.Code {
	t.Helper()
	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestAuthenticateResolvesSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var captured *model.Session
	r := gin.New()
	r.Use(NewAuthMiddleware(auth.NewVerifier(testSecret)).Authenticate())
	r.GET("/whoami", func(c *gin.Context) {
		captured = handler.SessionFrom(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, authz.RoleFrontDesk, time.Minute))
	req.Header.Set("User-Agent", "reception-tablet")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured)
	assert.Equal(t, authz.RoleFrontDesk, captured.Role)
	assert.Equal(t, "reception-tablet", captured.UserAgent)
	assert.True(t, captured.Has(model.PermQueueCall))
	assert.False(t, captured.Has(model.PermAuditRead))
}

func TestAuthenticateMissingHeader(t *testing.T) {
	r := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.CodeUnauthorized, responseCode(t, w))
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	r := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.CodeUnauthorized, responseCode(t, w))
}

func TestAuthenticateExpiredToken(t *testing.T) {
	r := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, authz.RoleDoctor, -time.Minute))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.CodeSessionExpired, responseCode(t, w))
}

func TestAuthenticateGarbageToken(t *testing.T) {
	r := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.CodeUnauthorized, responseCode(t, w))
}
