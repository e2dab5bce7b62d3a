package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "kabala/internal/core/context"
	"kabala/internal/core/tenant"
)

func TestFromContext_EnrichesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), NewFromZap(zap.New(core)))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1"})
	ctx = tenant.WithTenant(ctx, &tenant.Tenant{ID: "tenant-1"})

	Info(ctx, "hello", "k", "v")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, "u-1", fields["user_id"])
		assert.Equal(t, "tenant-1", fields["tenant_id"])
		assert.Equal(t, "v", fields["k"])
	}
}

func TestFromContext_NoCallerInfo(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithLogger(context.Background(), NewFromZap(zap.New(core)).WithComponent("test"))

	Debug(ctx, "bare")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "test", fields["component"])
		assert.NotContains(t, fields, "tenant_id")
	}
}

func TestWithContext_PrefersSpanTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), NewFromZap(zap.New(core)))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	Info(ctx, "in span")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
		assert.Equal(t, "r-1", fields["request_id"])
	}
}

func TestForDocument(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewFromZap(zap.New(core)).ForDocument("doc-1", "receipt").Infow("x")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "doc-1", fields["document_id"])
		assert.Equal(t, "receipt", fields["document_type"])
	}
}

func TestInitialFields(t *testing.T) {
	assert.Nil(t, initialFields(Config{}))
	assert.Equal(t, map[string]any{"service": "kabala-server", "version": "1.2.0"},
		initialFields(Config{Service: "kabala-server", Version: "1.2.0"}))
}
