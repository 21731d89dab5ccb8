package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
)

type fakeStore struct {
	pingErr error
	rows    map[period.Period][]metrics.Row
	listErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Periods(context.Context) ([]period.Period, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []period.Period
	for _, p := range []period.Period{period.MustParse("2025-06"), period.MustParse("2025-07")} {
		if _, ok := f.rows[p]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) Rows(_ context.Context, p period.Period) ([]metrics.Row, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rows[p], nil
}

func sampleStore() *fakeStore {
	jun := period.MustParse("2025-06")
	jul := period.MustParse("2025-07")
	return &fakeStore{rows: map[period.Period][]metrics.Row{
		jun: {
			{Period: jun, ChannelID: "A", Subscribers: 1000, RankSubscribers: 1, RankViews: 1, RankRatio: 1, RankLiveRatio: 1},
		},
		jul: {
			{Period: jul, ChannelID: "A", Subscribers: 1200, Views: 7200, RankSubscribers: 1, RankViews: 2, RankRatio: 2, RankLiveRatio: 2},
			{Period: jul, ChannelID: "B", Subscribers: 900, Views: 9000, RankSubscribers: 2, RankViews: 1, RankRatio: 1, RankLiveRatio: 1},
			{Period: jul, ChannelID: "C", Subscribers: 900, Views: 100, RankSubscribers: 2, RankViews: 3, RankRatio: 3, RankLiveRatio: 3},
		},
	}}
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	store := sampleStore()
	h := NewMux(context.Background(), store, Options{})
	if rec := serve(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	store.pingErr = errors.New("db down")
	if rec := serve(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with db down = %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeStore
		wantCode   int
		wantFailed string
	}{
		{"ready", sampleStore(), http.StatusOK, ""},
		{"db down", &fakeStore{pingErr: errors.New("down")}, http.StatusServiceUnavailable, "database"},
		{"empty", &fakeStore{}, http.StatusServiceUnavailable, "metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewMux(context.Background(), tt.store, Options{}), http.MethodGet, "/readyz")
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["failed_check"] != tt.wantFailed {
				t.Errorf("failed_check = %q, want %q", body["failed_check"], tt.wantFailed)
			}
		})
	}
}

func TestPeriods(t *testing.T) {
	rec := serve(t, NewMux(context.Background(), sampleStore(), Options{}), http.MethodGet, "/periods")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body struct {
		Periods []string `json:"periods"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"2025-06", "2025-07"}, body.Periods); diff != "" {
		t.Errorf("periods mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelMetrics(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		topN       int
		wantCode   int
		wantPeriod string
		wantIDs    []string
	}{
		{"latest by subscribers", "/channel-metrics", 0, http.StatusOK, "2025-07", []string{"A", "B", "C"}},
		{"top by views", "/channel-metrics?by=views&top=2", 0, http.StatusOK, "2025-07", []string{"B", "A"}},
		{"configured top", "/channel-metrics?by=ratio", 1, http.StatusOK, "2025-07", []string{"B"}},
		{"explicit period", "/channel-metrics?period=2025-06", 0, http.StatusOK, "2025-06", []string{"A"}},
		{"legacy period format", "/channel-metrics?period=06-2025", 0, http.StatusOK, "2025-06", []string{"A"}},
		{"unknown key", "/channel-metrics?by=likes", 0, http.StatusBadRequest, "", nil},
		{"bad period", "/channel-metrics?period=julio", 0, http.StatusBadRequest, "", nil},
		{"negative top", "/channel-metrics?top=-1", 0, http.StatusBadRequest, "", nil},
		{"missing period", "/channel-metrics?period=2024-01", 0, http.StatusNotFound, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMux(context.Background(), sampleStore(), Options{TopN: tt.topN})
			rec := serve(t, h, http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Period string `json:"period"`
				Total  int    `json:"total"`
				Rows   []struct {
					ChannelID string `json:"channel_id"`
				} `json:"rows"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var ids []string
			for _, r := range body.Rows {
				ids = append(ids, r.ChannelID)
			}
			if body.Period != tt.wantPeriod {
				t.Errorf("period = %q, want %q", body.Period, tt.wantPeriod)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChannelMetricsStoreError(t *testing.T) {
	h := NewMux(context.Background(), &fakeStore{listErr: errors.New("boom")}, Options{})
	if rec := serve(t, h, http.MethodGet, "/channel-metrics"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	if rec := serve(t, h, http.MethodPost, "/periods"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /periods = %d, want 405", rec.Code)
	}
}

func TestCorrelationID(t *testing.T) {
	h := NewMux(context.Background(), sampleStore(), Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("correlation id = %q, want reused header", got)
	}

	rec = serve(t, h, http.MethodGet, "/healthz")
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, NewMux(context.Background(), sampleStore(), Options{}), http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
}
