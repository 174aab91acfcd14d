package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceFieldsAppended(t *testing.T) {
	var buf bytes.Buffer
	l := &SlogLogger{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.InfoContext(ctx, "built context", "tenant", "t1")
	out := buf.String()
	assert.Contains(t, out, `"trace_id":"`+sc.TraceID().String()+`"`)
	assert.Contains(t, out, `"tenant":"t1"`)

	buf.Reset()
	l.InfoContext(context.Background(), "no span")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestFromContext(t *testing.T) {
	l := NewNop()
	ctx := l.WithContext(context.Background())
	assert.Same(t, l, FromContext(ctx))
	assert.Equal(t, Global(), FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
