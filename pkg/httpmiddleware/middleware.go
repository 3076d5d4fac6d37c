// Package httpmiddleware contains net/http middlewares shared by the store
// HTTP servers.
package httpmiddleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware is a net/http middleware.
type Middleware = func(http.Handler) http.Handler

// Wrap handler using given middlewares. The first middleware is the
// outermost one.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	switch len(middlewares) {
	case 0:
		return h
	case 1:
		return middlewares[0](h)
	default:
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// Route is a matched router entry.
type Route struct {
	Method  string
	Pattern string
}

// Name returns a stable operation name like "GET /api/orders/{id}".
func (r Route) Name() string {
	return r.Method + " " + r.Pattern
}

// RouteFinder finds the route serving the given method and URL.
type RouteFinder func(method string, u *url.URL) (Route, bool)

// MakeRouteFinder creates a RouteFinder over chi routes.
func MakeRouteFinder(routes chi.Routes) RouteFinder {
	return func(method string, u *url.URL) (Route, bool) {
		pattern := routes.Find(chi.NewRouteContext(), method, u.Path)
		if pattern == "" {
			return Route{}, false
		}
		return Route{Method: method, Pattern: pattern}, true
	}
}

// TelemetryProvider provides OpenTelemetry primitives.
type TelemetryProvider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
	TextMapPropagator() propagation.TextMapPropagator
}

// InjectLogger injects logger into request context. The request id set by
// RequestID is attached to the logger when present.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLg := lg
			if id := RequestIDFromContext(r.Context()); id != "" {
				reqLg = lg.With(zap.String("request_id", id))
			}
			req := r.WithContext(zctx.Base(r.Context(), reqLg))
			next.ServeHTTP(w, req)
		})
	}
}

// Instrument setups otelhttp.
func Instrument(serviceName string, find RouteFinder, m TelemetryProvider) Middleware {
	return func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, "",
			otelhttp.WithPropagators(m.TextMapPropagator()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithServerName(serviceName),
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				if route, ok := find(r.Method, r.URL); ok {
					return serviceName + "." + route.Name()
				}
				return operation
			}),
		)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// LogRequests logs handled requests using context logger.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := zap.Skip()
			if found, ok := find(r.Method, r.URL); ok {
				route = zap.String("route", found.Pattern)
			}
			lg := zctx.From(r.Context())
			lg.Debug("Request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				route,
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Labeler setups otelhttp.Labeler.
func Labeler(find RouteFinder) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := &otelhttp.Labeler{}
			if route, ok := find(r.Method, r.URL); ok {
				l.Add(attribute.String("http.route", route.Pattern))
			}
			ctx := otelhttp.ContextWithLabeler(r.Context(), l)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
