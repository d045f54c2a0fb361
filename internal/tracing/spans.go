package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used by this module.
const InstrumentationName = "github.com/tombee/apiclient"

// Span names.
const (
	SpanRequest       = "apiclient.request"
	SpanAttempt       = "apiclient.attempt"
	SpanOAuth2Refresh = "apiclient.oauth2.refresh"
)

// Attribute keys.
const (
	AttrMethod        = attribute.Key("http.request.method")
	AttrURL           = attribute.Key("url.full")
	AttrStatusCode    = attribute.Key("http.response.status_code")
	AttrAttempt       = attribute.Key("apiclient.attempt")
	AttrAttempts      = attribute.Key("apiclient.attempts")
	AttrCorrelationID = attribute.Key("apiclient.correlation_id")
	AttrStorageKey    = attribute.Key("apiclient.oauth2.storage_key")
	AttrErrorType     = attribute.Key("error.type")
)

// Tracer returns the module tracer from tp, or from the global provider when
// tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// Start starts a client span. A nil tracer yields a no-op span.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// EndWithError records err on span (if any) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var classifier interface{ ErrorType() string }
		if errors.As(err, &classifier) {
			span.SetAttributes(AttrErrorType.String(classifier.ErrorType()))
		}
	}
	span.End()
}
