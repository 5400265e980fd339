package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/config"
	"github.com/openkcm/openid-provider/internal/middleware/responsewriter"
)

const unmatchedRoute = "unmatched"

var (
	counter metric.Int64Counter
	hist    metric.Int64Histogram
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		"kms20/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	var err error

	counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return nil
}

// newTraceMiddleware covers every request with a span, a request id in the
// logging context and the request metrics. The operation is the matched
// route pattern.
func newTraceMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	traceAttrs := otlp.CreateAttributesFrom(cfg.Application)
	tracer := otel.Tracer("kms20/"+cfg.Application.Name, trace.WithInstrumentationAttributes(traceAttrs...))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := slogctx.With(r.Context(), commoncfg.AttrRequestID, uuid.NewString())
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

			// The router fills a route context it finds in the request
			// context, which exposes the matched pattern afterwards.
			rctx := chi.NewRouteContext()
			ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)

			ctx, span := tracer.Start(ctx, r.Method+" "+unmatchedRoute,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(traceAttrs...),
			)
			defer span.End()

			rec := responsewriter.NewStatusRecorder(w)
			requestStartTime := time.Now()

			slogctx.Debug(ctx, "Processing request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(rec, r.WithContext(ctx))

			operation := rctx.RoutePattern()
			if operation == "" {
				operation = unmatchedRoute
			}

			span.SetName(r.Method + " " + operation)
			span.SetAttributes(
				attribute.String(commoncfg.AttrOperation, operation),
				attribute.Int("http.response.status_code", rec.Status()),
			)
			if rec.Status() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.Status()))
			}

			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(cfg.Application,
					attribute.String("userAgent", r.UserAgent()),
					attribute.String(commoncfg.AttrOperation, operation),
					attribute.Int("status", rec.Status()),
				)...,
			)

			if counter != nil {
				counter.Add(ctx, 1, attrs)
			}
			if hist != nil {
				hist.Record(ctx, time.Since(requestStartTime).Milliseconds(), attrs)
			}

			slogctx.Info(ctx, "Finished request",
				"method", r.Method,
				commoncfg.AttrOperation, operation,
				"status", rec.Status(),
			)
		})
	}
}
