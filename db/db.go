// Package db provides database connection helpers, schema migration, and the
// channel_metrics data access helpers.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoDSN is returned by Connect when persistence is not configured.
var ErrNoDSN = errors.New("db: DB_DSN not set")

// Connect opens a Postgres connection pool for dsn.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate applies the idempotent schema for channel_metrics. It executes the
// same DDL as the first versioned migration, so it can run before or after
// RunMigrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	ddl, err := migrationsFS.ReadFile("migrations/000001_channel_metrics.up.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// RecordPoolStats exports the pool's connection counts.
func RecordPoolStats(db *sql.DB) {
	s := db.Stats()
	telemetry.UpdateDatabasePoolMetrics(s.OpenConnections, s.InUse)
}

const columns = `channel_id, period, channel_name, subscribers, views, video_count, live_count,
	views_per_subscriber, live_views, live_broadcasts, live_ratio, engagement_rate,
	live_periodicity_days, subscribers_delta, subscribers_growth_pct, views_delta,
	views_growth_pct, rank_subscribers, rank_views, rank_ratio, rank_live_ratio`

const upsertRow = `INSERT INTO channel_metrics (` + columns + `, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW())
ON CONFLICT (channel_id, period) DO UPDATE SET
	channel_name=EXCLUDED.channel_name,
	subscribers=EXCLUDED.subscribers,
	views=EXCLUDED.views,
	video_count=EXCLUDED.video_count,
	live_count=EXCLUDED.live_count,
	views_per_subscriber=EXCLUDED.views_per_subscriber,
	live_views=EXCLUDED.live_views,
	live_broadcasts=EXCLUDED.live_broadcasts,
	live_ratio=EXCLUDED.live_ratio,
	engagement_rate=EXCLUDED.engagement_rate,
	live_periodicity_days=EXCLUDED.live_periodicity_days,
	subscribers_delta=EXCLUDED.subscribers_delta,
	subscribers_growth_pct=EXCLUDED.subscribers_growth_pct,
	views_delta=EXCLUDED.views_delta,
	views_growth_pct=EXCLUDED.views_growth_pct,
	rank_subscribers=EXCLUDED.rank_subscribers,
	rank_views=EXCLUDED.rank_views,
	rank_ratio=EXCLUDED.rank_ratio,
	rank_live_ratio=EXCLUDED.rank_live_ratio,
	updated_at=NOW()`

// SaveRows replaces the stored rows of every period present in rows, in one
// transaction: either every row is stored or none is. Channels that no longer
// appear in a recomputed period (excluded, or gone from the snapshot) are
// removed. Periods absent from rows are untouched.
func SaveRows(ctx context.Context, db *sql.DB, rows []metrics.Row) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "db", "save_rows")
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	periods := metrics.Periods(rows)
	keys := make([]string, len(periods))
	for i, p := range periods {
		keys[i] = p.String()
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM channel_metrics WHERE period = ANY($1)`, keys); err != nil {
		return fmt.Errorf("clear recomputed periods: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertRow)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx,
			r.ChannelID, r.Period.String(), r.ChannelName, r.Subscribers, r.Views, r.VideoCount, r.LiveCount,
			r.ViewsPerSubscriber, r.LiveViews, r.LiveBroadcasts, r.LiveRatio, r.EngagementRate,
			r.LivePeriodicityDays, r.SubscribersDelta, r.SubscribersGrowthPct, r.ViewsDelta,
			r.ViewsGrowthPct, r.RankSubscribers, r.RankViews, r.RankRatio, r.RankLiveRatio,
		); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", r.ChannelID, r.Period, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRows returns the stored rows of p ordered by subscriber rank, then
// channel id.
func ListRows(ctx context.Context, db *sql.DB, p period.Period) ([]metrics.Row, error) {
	rs, err := db.QueryContext(ctx, `SELECT `+columns+` FROM channel_metrics
		WHERE period=$1 ORDER BY rank_subscribers ASC, channel_id ASC`, p.String())
	if err != nil {
		return nil, fmt.Errorf("query channel_metrics: %w", err)
	}
	defer rs.Close()
	var out []metrics.Row
	for rs.Next() {
		var r metrics.Row
		var ps string
		if err := rs.Scan(
			&r.ChannelID, &ps, &r.ChannelName, &r.Subscribers, &r.Views, &r.VideoCount, &r.LiveCount,
			&r.ViewsPerSubscriber, &r.LiveViews, &r.LiveBroadcasts, &r.LiveRatio, &r.EngagementRate,
			&r.LivePeriodicityDays, &r.SubscribersDelta, &r.SubscribersGrowthPct, &r.ViewsDelta,
			&r.ViewsGrowthPct, &r.RankSubscribers, &r.RankViews, &r.RankRatio, &r.RankLiveRatio,
		); err != nil {
			return nil, fmt.Errorf("scan channel_metrics: %w", err)
		}
		if r.Period, err = period.Parse(ps); err != nil {
			return nil, fmt.Errorf("stored period %q: %w", ps, err)
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

// ListPeriods returns every stored period, oldest first.
func ListPeriods(ctx context.Context, db *sql.DB) ([]period.Period, error) {
	rs, err := db.QueryContext(ctx, `SELECT DISTINCT period FROM channel_metrics ORDER BY period ASC`)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rs.Close()
	var out []period.Period
	for rs.Next() {
		var ps string
		if err := rs.Scan(&ps); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		p, err := period.Parse(ps)
		if err != nil {
			return nil, fmt.Errorf("stored period %q: %w", ps, err)
		}
		out = append(out, p)
	}
	return out, rs.Err()
}
