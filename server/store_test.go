package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/onnwee/chanstats/db"
	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/testutil"
)

func TestSQLStoreServesSavedRows(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	jul := period.MustParse("2025-07")
	rows := []metrics.Row{
		{Period: jul, ChannelID: "UC_A", ChannelName: "Alpha", Subscribers: 1200, RankSubscribers: 1, RankViews: 2, RankRatio: 2, RankLiveRatio: 1},
		{Period: jul, ChannelID: "UC_B", ChannelName: "Beta", Subscribers: 900, RankSubscribers: 2, RankViews: 1, RankRatio: 1, RankLiveRatio: 2},
	}
	if err := db.SaveRows(ctx, database, rows); err != nil {
		t.Fatalf("SaveRows: %v", err)
	}

	h := NewMux(ctx, SQLStore{DB: database}, Options{})
	if rec := serve(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d: %s", rec.Code, rec.Body.String())
	}
	rec := serve(t, h, http.MethodGet, "/channel-metrics?by=views")
	if rec.Code != http.StatusOK {
		t.Fatalf("channel-metrics = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Period string `json:"period"`
		Rows   []struct {
			ChannelID string `json:"channel_id"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Period != "2025-07" || len(body.Rows) != 2 || body.Rows[0].ChannelID != "UC_B" {
		t.Errorf("unexpected body: %+v", body)
	}
}
