package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ayurflow/clinic-api/internal/model"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
)

// Response is the uniform operation envelope. Success and failure are
// signalled in the body; the HTTP status mirrors the error kind.
type Response struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    apperrors.Code `json:"code,omitempty"`
}

func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// RespondEmpty is the "no patient available" shape: a successful call whose
// data is deliberately null.
func RespondEmpty(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true})
}

func RespondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	c.JSON(statusFor(appErr), Response{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
	})
}

// RespondBindError converts a request-binding failure into the validation
// envelope, flattening field errors into readable constraint messages.
func RespondBindError(c *gin.Context, err error) {
	msg := err.Error()
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			constraint := fe.Tag()
			if fe.Param() != "" {
				constraint = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
			}
			parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), constraint))
		}
		msg = strings.Join(parts, "; ")
	}

	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    apperrors.CodeValidation,
	})
}

func statusFor(err *apperrors.AppError) int {
	switch err.Kind {
	case apperrors.KindValidation, apperrors.KindStateTransition:
		return http.StatusBadRequest
	case apperrors.KindAuth:
		if err.Code == apperrors.CodePermissionDenied {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// SessionFrom pulls the authenticated session placed by the auth middleware.
func SessionFrom(c *gin.Context) *model.Session {
	v, ok := c.Get("session")
	if !ok {
		return nil
	}
	sess, _ := v.(*model.Session)
	return sess
}
