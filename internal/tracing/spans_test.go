package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type classifiedErr struct{}

func (classifiedErr) Error() string     { return "upstream unavailable" }
func (classifiedErr) ErrorType() string { return "server" }

func TestStartAndEndWithError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := Start(context.Background(), Tracer(tp), SpanRequest, AttrMethod.String("GET"))
	_, child := Start(ctx, Tracer(tp), SpanAttempt, AttrAttempt.Int(1))
	EndWithError(child, classifiedErr{})
	EndWithError(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	attempt, request := spans[0], spans[1]
	assert.Equal(t, SpanAttempt, attempt.Name())
	assert.Equal(t, codes.Error, attempt.Status().Code)
	assert.Equal(t, request.SpanContext().SpanID(), attempt.Parent().SpanID())

	var errType string
	for _, kv := range attempt.Attributes() {
		if kv.Key == AttrErrorType {
			errType = kv.Value.AsString()
		}
	}
	assert.Equal(t, "server", errType)
	assert.Equal(t, codes.Unset, request.Status().Code)
}

func TestStart_NilTracer(t *testing.T) {
	ctx, span := Start(context.Background(), nil, SpanRequest)
	assert.NotNil(t, ctx)
	assert.False(t, span.IsRecording())
	EndWithError(span, errors.New("ignored"))
}

func TestInjectHTTPHeaders(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := Tracer(tp).Start(context.Background(), "parent")
	defer span.End()

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	InjectHTTPHeaders(ctx, req)
	assert.NotEmpty(t, req.Header.Get("traceparent"))
}

func TestNewProvider(t *testing.T) {
	tp, err := NewProvider(context.Background(), Config{Exporter: ExporterStdout, Output: &discard{}})
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))

	_, err = NewProvider(context.Background(), Config{Exporter: "zipkin"})
	assert.Error(t, err)

	tp, err = NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
