package youtubeapi

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/telemetry"
)

// Source is the part of Client the extractor depends on.
type Source interface {
	Channel(ctx context.Context, id string) (*ChannelInfo, error)
	CompletedLives(ctx context.Context, channelID string, since time.Time, limit int) ([]LiveVideo, error)
}

// MinProgramCount is how many titles must share a prefix before it is
// treated as a recurring program.
const MinProgramCount = 2

// ChannelError is a per-channel extraction failure.
type ChannelError struct {
	ChannelID string
	Err       error
}

func (e ChannelError) Error() string { return e.ChannelID + ": " + e.Err.Error() }

func (e ChannelError) Unwrap() error { return e.Err }

// RunResult summarizes one extraction.
type RunResult struct {
	RunID       string
	Period      period.Period
	ChannelFile string
	ErrorLog    string
	Channels    int
	Videos      int
	Failed      []ChannelError
	QuotaUsed   int
}

// Extractor turns API data into a period's snapshot files.
type Extractor struct {
	src     Source
	writer  *snapshot.Writer
	dataDir string
	quota   *Quota

	// MaxLives caps the broadcasts kept per channel (most viewed first).
	MaxLives int
	now      func() time.Time
	log      *slog.Logger
}

// NewExtractor writes through w and drops the per-run error log in dataDir.
// quota may be nil when the source does not expose one.
func NewExtractor(src Source, w *snapshot.Writer, dataDir string, quota *Quota, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		src:      src,
		writer:   w,
		dataDir:  dataDir,
		quota:    quota,
		MaxLives: 10,
		now:      time.Now,
		log:      logger.With(slog.String("component", "extractor")),
	}
}

// ErrorLogFile is <dataDir>/errors_MM-YYYY.log.
func ErrorLogFile(dataDir string, p period.Period) string {
	return filepath.Join(dataDir, "errors_"+p.FileStamp()+".log")
}

// Run extracts every channel for p. A failing channel is logged and left out
// of the summary; only a failure to write the summary or the error log aborts
// the run. An existing summary for p fails fast with snapshot.ErrSnapshotExists
// unless the writer forces overwrites.
func (e *Extractor) Run(ctx context.Context, channelIDs []string, p period.Period) (*RunResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "extractor", "extract", telemetry.PeriodAttr(p.String()))
	defer span.End()

	if err := e.writer.CheckChannels(p); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	res := &RunResult{RunID: uuid.NewString(), Period: p, ErrorLog: ErrorLogFile(e.dataDir, p)}
	log := e.log.With(slog.String("run_id", res.RunID), slog.String("period", p.String()))
	log.Info("extraction started", slog.Int("channels", len(channelIDs)))

	var summary []snapshot.Channel
	for i, id := range channelIDs {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		ch, videos, err := e.channel(ctx, id, p)
		if err == nil {
			_, err = e.writer.WriteVideos(id, p, videos)
		}
		if err != nil {
			log.Error("channel extraction failed", slog.String("channel_id", id), slog.Any("err", err))
			res.Failed = append(res.Failed, ChannelError{ChannelID: id, Err: err})
			if errors.Is(err, ErrQuotaExhausted) {
				log.Warn("quota budget exhausted, remaining channels skipped")
				for _, rest := range channelIDs[i+1:] {
					res.Failed = append(res.Failed, ChannelError{ChannelID: rest, Err: ErrQuotaExhausted})
				}
				break
			}
			continue
		}
		summary = append(summary, ch)
		res.Videos += len(videos)
	}

	path, err := e.writer.WriteChannels(p, summary)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	res.ChannelFile = path
	res.Channels = len(summary)

	if err := snapshot.WriteFileAtomic(res.ErrorLog, func(w io.Writer) error {
		for _, f := range res.Failed {
			if _, err := fmt.Fprintln(w, f.Error()); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("write error log: %w", err)
	}

	if e.quota != nil {
		res.QuotaUsed = e.quota.Used()
	}
	log.Info("extraction finished",
		slog.Int("channels", res.Channels),
		slog.Int("videos", res.Videos),
		slog.Int("failed", len(res.Failed)),
		slog.Int("quota_used", res.QuotaUsed),
		slog.String("error_log", res.ErrorLog))
	telemetry.SetSpanSuccess(span)
	return res, nil
}

func (e *Extractor) channel(ctx context.Context, id string, p period.Period) (snapshot.Channel, []snapshot.Video, error) {
	ctx, span := telemetry.StartSpan(ctx, "extractor", "channel", telemetry.ChannelAttr(id))
	defer span.End()

	info, err := e.src.Channel(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return snapshot.Channel{}, nil, err
	}
	all, err := e.src.CompletedLives(ctx, id, p.Start(), 0)
	if err != nil {
		telemetry.RecordError(span, err)
		return snapshot.Channel{}, nil, err
	}
	var lives []LiveVideo
	for _, v := range all {
		if p.Contains(v.PublishedAt) {
			lives = append(lives, v)
		}
	}
	if e.MaxLives > 0 && len(lives) > e.MaxLives {
		lives = lives[:e.MaxLives]
	}

	extracted := e.now().UTC()
	titles := make([]string, 0, len(lives))
	starts := make([]time.Time, 0, len(lives))
	for _, v := range lives {
		titles = append(titles, v.Title)
		starts = append(starts, v.PublishedAt)
	}
	programs := ProgramNames(GuessPrograms(titles, MinProgramCount))
	count, meanDays := metrics.Periodicity(starts)

	ch := snapshot.Channel{
		Period:              p,
		ID:                  id,
		Name:                info.Title,
		URL:                 info.URL(),
		Description:         info.Description,
		Country:             info.Country,
		PublishedAt:         info.PublishedAt,
		Subscribers:         info.Subscribers,
		Views:               info.Views,
		VideoCount:          info.VideoCount,
		LiveCount:           int64(count),
		LivePeriodicityDays: meanDays,
		Platforms:           DetectPlatforms(info.Description),
		Links:               ExtractLinks(info.Description),
		Programs:            programs,
		ExtractedAt:         extracted,
	}
	if len(starts) > 0 {
		ch.FirstLive = slices.MinFunc(starts, time.Time.Compare)
		ch.LastLive = slices.MaxFunc(starts, time.Time.Compare)
	}

	videos := make([]snapshot.Video, 0, len(lives))
	for i, v := range lives {
		videos = append(videos, snapshot.Video{
			Period:      p,
			ID:          v.ID,
			ChannelID:   id,
			ChannelName: info.Title,
			Title:       v.Title,
			URL:         v.URL(),
			Program:     AssignProgram(v.Title, programs),
			MonthRank:   i + 1,
			PublishedAt: v.PublishedAt,
			Duration:    v.Duration,
			Views:       v.Views,
			Likes:       v.Likes,
			Comments:    v.Comments,
			LiveStatus:  v.Status,
			Platforms:   DetectPlatforms(v.Description),
			Links:       ExtractLinks(v.Description),
			ExtractedAt: extracted,
		})
	}
	telemetry.SetSpanSuccess(span)
	return ch, videos, nil
}

// ChannelRef is one entry of the channels list.
type ChannelRef struct {
	ID   string
	Name string
}

var (
	idColumns   = []string{"channel_id", "canalid"}
	nameColumns = []string{"name", "nombre", "channel_title"}
)

// ReadChannelList loads the channels file. The delimiter is a tab when the
// header line contains one and a comma otherwise; the id column is
// channel_id (or CanalID) and the optional name column is name (or Nombre).
func ReadChannelList(path string) ([]ChannelRef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel list: %w", err)
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")
	header, _, _ := strings.Cut(text, "\n")

	r := csv.NewReader(strings.NewReader(text))
	if strings.Contains(header, "\t") {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse channel list %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	idCol, nameCol := -1, -1
	for i, h := range records[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case idCol < 0 && slices.Contains(idColumns, h):
			idCol = i
		case nameCol < 0 && slices.Contains(nameColumns, h):
			nameCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("channel list %s: no channel_id or CanalID column", path)
	}

	var out []ChannelRef
	seen := map[string]bool{}
	for _, rec := range records[1:] {
		if idCol >= len(rec) {
			continue
		}
		id := strings.TrimSpace(rec[idCol])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ref := ChannelRef{ID: id, Name: id}
		if nameCol >= 0 && nameCol < len(rec) && strings.TrimSpace(rec[nameCol]) != "" {
			ref.Name = strings.TrimSpace(rec[nameCol])
		}
		out = append(out, ref)
	}
	return out, nil
}

// IDs returns the channel ids of refs in order.
func IDs(refs []ChannelRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID)
	}
	return out
}
