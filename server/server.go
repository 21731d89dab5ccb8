// Package server exposes the HTTP API: health, readiness, prometheus metrics
// and the stored channel metrics. It includes permissive CORS for development
// and injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chanstats/db"
	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/telemetry"
)

// Store is the read side of the metrics database.
type Store interface {
	Ping(ctx context.Context) error
	Periods(ctx context.Context) ([]period.Period, error)
	Rows(ctx context.Context, p period.Period) ([]metrics.Row, error)
}

// SQLStore reads channel_metrics from Postgres.
type SQLStore struct {
	DB *sql.DB
}

func (s SQLStore) Ping(ctx context.Context) error {
	db.RecordPoolStats(s.DB)
	return s.DB.PingContext(ctx)
}

func (s SQLStore) Periods(ctx context.Context) ([]period.Period, error) {
	return db.ListPeriods(ctx, s.DB)
}

func (s SQLStore) Rows(ctx context.Context, p period.Period) ([]metrics.Row, error) {
	return db.ListRows(ctx, s.DB, p)
}

// Options configures the handler.
type Options struct {
	// CORSOrigins restricts CORS to these origins; empty is permissive.
	CORSOrigins []string
	// TopN is the default row limit of /channel-metrics (0 = all rows).
	TopN int
}

var routes = map[string]bool{
	"/metrics": true, "/healthz": true, "/readyz": true, "/periods": true, "/channel-metrics": true,
}

// NewMux returns the HTTP handler with all routes.
func NewMux(ctx context.Context, store Store, opts Options) http.Handler {
	handlers := NewHandlers(store, opts.TopN)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health and readiness endpoints
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	// Data endpoints
	mux.HandleFunc("/periods", handlers.HandlePeriods)
	mux.HandleFunc("/channel-metrics", handlers.HandleChannelMetrics)

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		route := r.URL.Path
		if !routes[route] {
			route = "other"
		}
		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+route,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(route),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		// Capture status code via custom ResponseWriter
		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.HTTPRequest(route, wrappedWriter.statusCode)
		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
		if wrappedWriter.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrappedWriter.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, newCORSConfig(opts.CORSOrigins))
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, store Store, addr string, opts Options) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, store, opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
