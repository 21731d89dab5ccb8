// Package config loads environment variables and provides a typed Config used across the commands.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For commands that call the YouTube API, use ValidateFetch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Storage
	DataDir      string
	ChannelsFile string
	ReportsDir   string

	// Metrics
	ExcludeChannels  []string
	EngagementWindow int
	LiveMinDuration  time.Duration
	TopN             int

	// YouTube
	YouTubeAPIKey  string
	YTClientID     string
	YTClientSecret string
	YTRefreshToken string
	MaxLiveVideos  int
	QuotaBudget    int

	// Live tracking
	LiveTrackInterval time.Duration
	LiveTrackWindow   string

	// Database
	DBDsn string

	// HTTP
	HTTPAddr    string
	CORSOrigins []string

	// Tracing
	OTLPEndpoint string
}

// Load reads environment variables and applies defaults. It doesn't fail if YouTube creds are missing;
// use ValidateFetch() for commands that call the API. An empty DB_DSN disables persistence.
func Load() (*Config, error) {
	cfg := &Config{}

	// Storage
	cfg.DataDir = envOr("DATA_DIR", "data")
	cfg.ChannelsFile = envOr("CHANNELS_FILE", "channels.csv")
	cfg.ReportsDir = os.Getenv("REPORTS_DIR")
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = cfg.DataDir + "/reports"
	}

	// Metrics
	cfg.ExcludeChannels = splitList(os.Getenv("EXCLUDE_CHANNELS"))
	var err error
	if cfg.EngagementWindow, err = intEnv("ENGAGEMENT_WINDOW", 5); err != nil {
		return nil, err
	}
	if cfg.LiveMinDuration, err = durationEnv("LIVE_MIN_DURATION", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.TopN, err = intEnv("TOP_N", 10); err != nil {
		return nil, err
	}

	// YouTube
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")
	if cfg.MaxLiveVideos, err = intEnv("MAX_LIVE_VIDEOS", 10); err != nil {
		return nil, err
	}
	// 0 = no local budget; the API still enforces the daily quota.
	if cfg.QuotaBudget, err = intEnv("YOUTUBE_QUOTA_BUDGET", 0); err != nil {
		return nil, err
	}

	// Live tracking
	if cfg.LiveTrackInterval, err = durationEnv("LIVE_TRACK_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.LiveTrackWindow = envOr("LIVE_TRACK_WINDOW", "19:00-22:00")

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")

	// HTTP
	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	cfg.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// ValidateFetch checks that some YouTube credential is configured.
func (c *Config) ValidateFetch() error {
	oauth := c.YTClientID != "" && c.YTClientSecret != "" && c.YTRefreshToken != ""
	if c.YouTubeAPIKey == "" && !oauth {
		return fmt.Errorf("missing youtube env: require YOUTUBE_API_KEY or YT_CLIENT_ID, YT_CLIENT_SECRET, YT_REFRESH_TOKEN")
	}
	return nil
}

// ValidateServe checks that the HTTP surface has a database to read from.
func (c *Config) ValidateServe() error {
	if c.DBDsn == "" {
		return fmt.Errorf("missing DB_DSN: serve reads computed metrics from postgres")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s (non-negative integer): %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration like 30m): %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
