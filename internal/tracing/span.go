package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRequestClass = attribute.Key("throttlebench.class")
	AttrOutcomeKind  = attribute.Key("throttlebench.outcome")
	AttrUserID       = attribute.Key("throttlebench.user_id")
	AttrStatusCode   = attribute.Key("http.response.status_code")
	AttrMethod       = attribute.Key("http.request.method")
	AttrURL          = attribute.Key("url.full")
)

// StartRequestSpan starts a client span named after the HTTP method and the
// request class, e.g. "GET heavy".
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, class, url string) (context.Context, trace.Span) {
	name := method
	if class != "" {
		name = method + " " + class
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		AttrMethod.String(method),
		AttrURL.String(url),
	)
	if class != "" {
		span.SetAttributes(AttrRequestClass.String(class))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
