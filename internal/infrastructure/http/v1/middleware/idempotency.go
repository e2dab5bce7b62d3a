package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/apperror"
	appctx "kabala/internal/core/context"
	"kabala/internal/core/tenant"
	"kabala/internal/infrastructure/storage/postgres"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB
const maxIdempotencyKeyLength = 255

const (
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// IdempotencyStore keeps the outcome of mutating requests per tenant and key.
// Implemented by postgres.IdempotencyStore.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, tenantID, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, tenantID, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, tenantID, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, tenantID, key string) error
}

var _ IdempotencyStore = (*postgres.IdempotencyStore)(nil)

// Idempotency middleware protects against duplicate requests.
// Applies to POST/PUT/PATCH/DELETE carrying X-Idempotency-Key and must run
// after TenantScope: keys are scoped to the caller's tenant.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			_ = c.Error(apperror.NewValidation("idempotency key is too long").
				WithDetail("max_length", maxIdempotencyKeyLength))
			c.Abort()
			return
		}

		tenantID, err := tenant.ResolveID(c.Request.Context())
		if err != nil {
			abortUnauthorized(c, "no tenant for caller")
			return
		}

		userID := appctx.GetUserID(c.Request.Context())

		// Hash request body
		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		// Operation includes the concrete path so one key cannot span documents.
		operation := c.Request.Method + " " + c.Request.URL.Path

		replay, err := store.AcquireKey(c.Request.Context(), tenantID, key, userID, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

// CompleteIdempotency stores a successful response under the request's
// idempotency key, if any.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, body []byte) error {
	store, key, tenantID, ok := idempotencyFromContext(c)
	if !ok {
		return nil
	}
	return store.CompleteKey(c.Request.Context(), tenantID, key, statusCode, contentType, body)
}

func idempotencyFromContext(c *gin.Context) (IdempotencyStore, string, string, bool) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return nil, "", "", false
	}
	v, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return nil, "", "", false
	}
	store, ok := v.(IdempotencyStore)
	if !ok || store == nil {
		return nil, "", "", false
	}
	tenantID := tenant.GetTenantID(c.Request.Context())
	if tenantID == "" {
		return nil, "", "", false
	}
	return store, key, tenantID, true
}
