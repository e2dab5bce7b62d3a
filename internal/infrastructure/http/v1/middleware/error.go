package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/apperror"
	"kabala/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body gin.H

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil || appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"status", appErr.HTTPStatus,
					"details", appErr.Details,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error",
				"error", err,
			)
			body = gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": c.GetString("request_id"),
				},
			}
		}

		settleIdempotency(c, err, status, body)

		c.JSON(status, body)
	}
}

// settleIdempotency records the error response under the request's
// idempotency key. Transient storage faults release the key instead so the
// client can retry with the same key.
func settleIdempotency(c *gin.Context, err error, status int, body gin.H) {
	store, key, tenantID, ok := idempotencyFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if apperror.IsTransient(err) {
		if rerr := store.ReleaseKey(ctx, tenantID, key); rerr != nil {
			logger.Warn(ctx, "failed to release idempotency key", "key", key, "error", rerr)
		}
		return
	}

	raw, merr := json.Marshal(body)
	if merr != nil {
		return
	}
	if ferr := store.FailKey(ctx, tenantID, key, status, "application/json", raw); ferr != nil {
		logger.Warn(ctx, "failed to store idempotent error response", "key", key, "error", ferr)
	}
}
