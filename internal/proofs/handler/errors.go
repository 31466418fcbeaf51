package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// Error codes returned in the "code" field of every error body.
const (
	CodeUnauthorized   = "unauthorized"
	CodeAlreadyExists  = "already_exists"
	CodeInvalidLength  = "invalid_length"
	CodeContentTooLong = "content_too_long"
	CodeNotFound       = "not_found"
	CodeWrongType      = "wrong_type"
	CodeBadRequest     = "bad_request"
	CodeUnavailable    = "backend_unavailable"
	CodeInternal       = "internal"
	CodeRateLimited    = "rate_limited"
)

// classify maps a service error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, service.ErrInvalidLength):
		return http.StatusBadRequest, CodeInvalidLength
	case errors.Is(err, service.ErrContentTooLong):
		return http.StatusUnprocessableEntity, CodeContentTooLong
	case errors.Is(err, model.ErrInvalidContent),
		errors.Is(err, service.ErrMissingID),
		errors.Is(err, service.ErrInvalidFilter):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, service.ErrWrongType):
		return http.StatusNotFound, CodeWrongType
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeBadRequest})
}
