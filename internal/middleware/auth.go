package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ayurflow/clinic-api/internal/authz"
	"github.com/ayurflow/clinic-api/internal/handler"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/auth"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
)

type AuthMiddleware struct {
	verifier *auth.Verifier
}

func NewAuthMiddleware(verifier *auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and resolves the session once: the
// capability set is derived from the role here and never re-queried
// downstream.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, apperrors.NewUnauthorized("missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, apperrors.NewUnauthorized("invalid authorization format"))
			return
		}

		claims, err := m.verifier.Verify(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				abortWith(c, apperrors.NewSessionExpired())
				return
			}
			abortWith(c, apperrors.NewUnauthorized("invalid token"))
			return
		}

		sess := &model.Session{
			UserID:      claims.UserID,
			ClinicID:    claims.ClinicID,
			Role:        claims.Role,
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Permissions: authz.Resolve(claims.Role),
		}
		c.Set("session", sess)
		c.Next()
	}
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	status := http.StatusUnauthorized
	c.AbortWithStatusJSON(status, handler.Response{
		Success: false,
		Error:   err.Message,
		Code:    err.Code,
	})
}
