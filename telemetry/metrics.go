// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SnapshotFilesLoaded  prometheus.Counter
	SnapshotFilesSkipped *prometheus.CounterVec // label: kind (channels|videos)
	MalformedFields      prometheus.Counter
	OrphanVideos         prometheus.Counter
	APIQuotaUnits        *prometheus.CounterVec // label: method
	APIErrors            *prometheus.CounterVec // label: class
	APIRetries           prometheus.Counter
	HTTPRequests         *prometheus.CounterVec // labels: route, code

	// Histograms (seconds)
	StageDuration *prometheus.HistogramVec // label: stage (load|compute|emit|persist|extract)

	// Gauges
	RowsComputed    prometheus.Gauge
	ChannelsLiveNow prometheus.Gauge
	DBOpenConns     prometheus.Gauge
	DBInUseConns    prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SnapshotFilesLoaded = promauto.NewCounter(prometheus.CounterOpts{Name: "chanstats_snapshot_files_loaded_total", Help: "Channel-summary files parsed"})
		SnapshotFilesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanstats_snapshot_files_skipped_total", Help: "Snapshot files skipped because they failed to parse"}, []string{"kind"})
		MalformedFields = promauto.NewCounter(prometheus.CounterOpts{Name: "chanstats_malformed_fields_total", Help: "Numeric or time values coerced to zero"})
		OrphanVideos = promauto.NewCounter(prometheus.CounterOpts{Name: "chanstats_orphan_videos_total", Help: "Video rows dropped because their channel had no summary row"})
		APIQuotaUnits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanstats_youtube_quota_units_total", Help: "YouTube Data API quota units spent"}, []string{"method"})
		APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanstats_youtube_errors_total", Help: "YouTube Data API errors by class"}, []string{"class"})
		APIRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "chanstats_youtube_retries_total", Help: "YouTube Data API calls retried"})
		HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanstats_http_requests_total", Help: "HTTP requests served"}, []string{"route", "code"})
		StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chanstats_stage_duration_seconds", Help: "Pipeline stage duration seconds", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900}}, []string{"stage"})
		RowsComputed = promauto.NewGauge(prometheus.GaugeOpts{Name: "chanstats_rows_computed", Help: "Derived metric rows produced by the last run"})
		ChannelsLiveNow = promauto.NewGauge(prometheus.GaugeOpts{Name: "chanstats_channels_live_now", Help: "Channels live at the last tracker poll"})
		DBOpenConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "chanstats_db_open_connections", Help: "Open database connections"})
		DBInUseConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "chanstats_db_in_use_connections", Help: "Database connections in use"})
	})
}

// SnapshotFileLoaded counts one parsed channel-summary file.
func SnapshotFileLoaded() {
	if SnapshotFilesLoaded != nil {
		SnapshotFilesLoaded.Inc()
	}
}

// SnapshotFileSkipped counts one unreadable snapshot file of the given kind.
func SnapshotFileSkipped(kind string) {
	if SnapshotFilesSkipped != nil {
		SnapshotFilesSkipped.WithLabelValues(kind).Inc()
	}
}

// RecordDiagnostics adds a load's recoverable problem counts.
func RecordDiagnostics(malformed, orphans int) {
	if MalformedFields != nil {
		MalformedFields.Add(float64(malformed))
	}
	if OrphanVideos != nil {
		OrphanVideos.Add(float64(orphans))
	}
}

// AddQuota records units spent on an API method.
func AddQuota(method string, units int) {
	if APIQuotaUnits != nil {
		APIQuotaUnits.WithLabelValues(method).Add(float64(units))
	}
}

// APIError counts a classified API failure.
func APIError(class string) {
	if APIErrors != nil {
		APIErrors.WithLabelValues(class).Inc()
	}
}

// APIRetry counts one retried API call.
func APIRetry() {
	if APIRetries != nil {
		APIRetries.Inc()
	}
}

// HTTPRequest counts a served request.
func HTTPRequest(route string, code int) {
	if HTTPRequests != nil {
		HTTPRequests.WithLabelValues(route, httpCodeLabel(code)).Inc()
	}
}

func httpCodeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// SetRowsComputed records the size of the last computed row set.
func SetRowsComputed(n int) {
	if RowsComputed != nil {
		RowsComputed.Set(float64(n))
	}
}

// SetChannelsLiveNow records how many tracked channels were live.
func SetChannelsLiveNow(n int) {
	if ChannelsLiveNow != nil {
		ChannelsLiveNow.Set(float64(n))
	}
}

// UpdateDatabasePoolMetrics records sql.DB pool usage.
func UpdateDatabasePoolMetrics(open, inUse int) {
	if DBOpenConns != nil {
		DBOpenConns.Set(float64(open))
	}
	if DBInUseConns != nil {
		DBInUseConns.Set(float64(inUse))
	}
}

// Stage returns the duration observer for a pipeline stage, or nil before Init.
func Stage(stage string) prometheus.Observer {
	if StageDuration == nil {
		return nil
	}
	return StageDuration.WithLabelValues(stage)
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
