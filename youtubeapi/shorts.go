package youtubeapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/shorts"
	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/telemetry"
)

// UploadSource is the part of Client the shorts collector depends on.
type UploadSource interface {
	Uploads(ctx context.Context, channelID string, after, before time.Time) ([]LiveVideo, error)
}

// ShortsResult summarizes one shorts collection.
type ShortsResult struct {
	RunID     string
	Period    period.Period
	File      string
	Channels  int
	Shorts    int
	Failed    []ChannelError
	QuotaUsed int
	Calls     map[string]int
}

// ShortsCollector gathers a period's short-form uploads for a channel list.
type ShortsCollector struct {
	src   UploadSource
	dir   string
	quota *Quota

	// Filter decides what is short-form; only its MinDuration is used.
	Filter metrics.LiveFilter
	now    func() time.Time
	log    *slog.Logger
}

// NewShortsCollector writes exports under dir. quota may be nil.
func NewShortsCollector(src UploadSource, dir string, quota *Quota, logger *slog.Logger) *ShortsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShortsCollector{
		src:    src,
		dir:    dir,
		quota:  quota,
		Filter: metrics.DefaultLiveFilter(),
		now:    time.Now,
		log:    logger.With(slog.String("component", "shorts")),
	}
}

// Run collects the shorts every channel published in p and replaces p's
// export. A failing channel is logged and skipped. When nothing was found no
// file is written and File is empty.
func (sc *ShortsCollector) Run(ctx context.Context, refs []ChannelRef, p period.Period) (*ShortsResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "shorts", "collect", telemetry.PeriodAttr(p.String()))
	defer span.End()

	res := &ShortsResult{RunID: uuid.NewString(), Period: p}
	log := sc.log.With(slog.String("run_id", res.RunID), slog.String("period", p.String()))
	log.Info("shorts collection started", slog.Int("channels", len(refs)))

	extracted := sc.now().UTC()
	var found []snapshot.Video
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		uploads, err := sc.src.Uploads(ctx, ref.ID, p.Start(), p.End())
		if err != nil {
			log.Error("shorts fetch failed", slog.String("channel_id", ref.ID), slog.Any("err", err))
			res.Failed = append(res.Failed, ChannelError{ChannelID: ref.ID, Err: err})
			if errors.Is(err, ErrQuotaExhausted) {
				log.Warn("quota budget exhausted, remaining channels skipped")
				for _, rest := range refs[i+1:] {
					res.Failed = append(res.Failed, ChannelError{ChannelID: rest.ID, Err: ErrQuotaExhausted})
				}
				break
			}
			continue
		}
		res.Channels++
		var kept int
		for _, v := range uploads {
			if !sc.Filter.ShortForm(v.Duration) {
				continue
			}
			found = append(found, snapshot.Video{
				Period:      p,
				ID:          v.ID,
				ChannelID:   ref.ID,
				ChannelName: ref.Name,
				Title:       v.Title,
				URL:         shorts.URL(v.ID),
				PublishedAt: v.PublishedAt,
				Duration:    v.Duration,
				Views:       v.Views,
				Likes:       v.Likes,
				Comments:    v.Comments,
				LiveStatus:  v.Status,
				ExtractedAt: extracted,
			})
			kept++
		}
		log.Debug("channel shorts collected", slog.String("channel_id", ref.ID), slog.Int("uploads", len(uploads)), slog.Int("shorts", kept))
	}

	res.Shorts = len(found)
	if len(found) == 0 {
		log.Warn("no shorts found for period")
	} else {
		path, err := shorts.Write(sc.dir, p, found)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		res.File = path
	}

	if sc.quota != nil {
		res.QuotaUsed = sc.quota.Used()
		res.Calls = sc.quota.Calls()
	}
	log.Info("shorts collection finished",
		slog.Int("channels", res.Channels),
		slog.Int("shorts", res.Shorts),
		slog.Int("failed", len(res.Failed)),
		slog.Int("search_calls", res.Calls[MethodSearchList]),
		slog.Int("videos_calls", res.Calls[MethodVideosList]),
		slog.Int("quota_used", res.QuotaUsed),
		slog.String("file", res.File))
	telemetry.SetSpanSuccess(span)
	return res, nil
}
