// Package youtubeapi wraps the YouTube Data API for the extractor and the
// live tracker: channel statistics, completed live broadcasts of a period and
// current live status. Every call is priced against a Quota and retried with
// backoff when the failure is transient.
package youtubeapi

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/telemetry"
)

const (
	readonlyScope = "https://www.googleapis.com/auth/youtube.readonly"
	// searchCap stops paging search results for one channel.
	searchCap = 100
	batchSize = 50
)

// Credentials selects how the client authenticates. A complete OAuth
// refresh-token triple wins over an API key.
type Credentials struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (c Credentials) oauth() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Client is a quota-aware YouTube Data API client.
type Client struct {
	svc   *yt.Service
	quota *Quota
	retry RetryConfig
	log   *slog.Logger
}

// NewClient builds a Client. Extra options (endpoint, HTTP client) are
// applied after the credential option.
func NewClient(ctx context.Context, creds Credentials, quota *Quota, opts ...option.ClientOption) (*Client, error) {
	var auth option.ClientOption
	switch {
	case creds.oauth():
		conf := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{readonlyScope},
		}
		auth = option.WithTokenSource(conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}))
	case creds.APIKey != "":
		auth = option.WithAPIKey(creds.APIKey)
	default:
		return nil, ErrNoCredentials
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{auth}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	if quota == nil {
		quota = NewQuota(0)
	}
	return &Client{
		svc:   svc,
		quota: quota,
		retry: DefaultRetryConfig(),
		log:   slog.Default().With(slog.String("component", "youtubeapi")),
	}, nil
}

// SetRetry replaces the retry policy.
func (c *Client) SetRetry(cfg RetryConfig) { c.retry = cfg }

// Quota returns the quota counter the client charges.
func (c *Client) Quota() *Quota { return c.quota }

func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", method)
	defer span.End()
	err := withRetry(ctx, c.retry, func(ctx context.Context) error {
		if err := c.quota.Spend(method); err != nil {
			return err
		}
		return fn(ctx)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// ChannelInfo is the channels.list view the extractor needs.
type ChannelInfo struct {
	ID          string
	Title       string
	Description string
	Country     string
	PublishedAt time.Time
	Subscribers int64
	Views       int64
	VideoCount  int64
}

// URL is the channel's public page.
func (ci ChannelInfo) URL() string { return "https://www.youtube.com/channel/" + ci.ID }

// Channel fetches snippet and statistics for one channel.
func (c *Client) Channel(ctx context.Context, id string) (*ChannelInfo, error) {
	var resp *yt.ChannelListResponse
	err := c.call(ctx, MethodChannelsList, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Channels.List([]string{"snippet", "statistics"}).Id(id).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	item := resp.Items[0]
	info := &ChannelInfo{ID: id}
	if s := item.Snippet; s != nil {
		info.Title = s.Title
		info.Description = s.Description
		info.Country = s.Country
		info.PublishedAt = parseAPITime(s.PublishedAt)
	}
	if s := item.Statistics; s != nil {
		info.Subscribers = int64(s.SubscriberCount)
		info.Views = int64(s.ViewCount)
		info.VideoCount = int64(s.VideoCount)
	}
	return info, nil
}

// LiveVideo is one broadcast with its statistics.
type LiveVideo struct {
	ID          string
	Title       string
	Description string
	PublishedAt time.Time
	// Status is the snippet's liveBroadcastContent, or "completed" for
	// results of an eventType=completed search.
	Status      string
	ActualStart time.Time
	ActualEnd   time.Time
	Duration    time.Duration
	Views       int64
	Likes       int64
	Comments    int64
}

// URL is the video's watch page.
func (v LiveVideo) URL() string { return "https://www.youtube.com/watch?v=" + v.ID }

// CompletedLives returns up to limit finished broadcasts of channelID
// published at or after since, most viewed first. limit <= 0 returns every
// result found.
func (c *Client) CompletedLives(ctx context.Context, channelID string, since time.Time, limit int) ([]LiveVideo, error) {
	ids, err := c.searchVideoIDs(ctx, func() *yt.SearchListCall {
		return c.svc.Search.List([]string{"id", "snippet"}).
			ChannelId(channelID).
			Type("video").
			EventType("completed").
			PublishedAfter(since.UTC().Format(time.RFC3339))
	})
	if err != nil {
		return nil, err
	}

	videos, err := c.videoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range videos {
		videos[i].Status = snapshot.LiveCompleted
	}
	slices.SortStableFunc(videos, func(a, b LiveVideo) int {
		if d := cmp.Compare(b.Views, a.Views); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(videos) > limit {
		videos = videos[:limit]
	}
	c.log.Debug("completed lives fetched", slog.String("channel_id", channelID), slog.Int("found", len(ids)), slog.Int("kept", len(videos)))
	return videos, nil
}

// Uploads returns the videos channelID published in [after, before), newest
// first. Like CompletedLives it stops after searchCap search results.
func (c *Client) Uploads(ctx context.Context, channelID string, after, before time.Time) ([]LiveVideo, error) {
	ids, err := c.searchVideoIDs(ctx, func() *yt.SearchListCall {
		return c.svc.Search.List([]string{"id"}).
			ChannelId(channelID).
			Type("video").
			Order("date").
			PublishedAfter(after.UTC().Format(time.RFC3339)).
			PublishedBefore(before.UTC().Format(time.RFC3339))
	})
	if err != nil {
		return nil, err
	}
	videos, err := c.videoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(videos, func(a, b LiveVideo) int {
		if d := b.PublishedAt.Compare(a.PublishedAt); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	c.log.Debug("uploads fetched", slog.String("channel_id", channelID), slog.Int("found", len(videos)))
	return videos, nil
}

// searchVideoIDs pages a search.list call until it runs out of results or
// reaches searchCap distinct ids.
func (c *Client) searchVideoIDs(ctx context.Context, newCall func() *yt.SearchListCall) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		var resp *yt.SearchListResponse
		err := c.call(ctx, MethodSearchList, func(ctx context.Context) error {
			call := newCall().MaxResults(batchSize).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if item.Id != nil && item.Id.VideoId != "" && !slices.Contains(ids, item.Id.VideoId) {
				ids = append(ids, item.Id.VideoId)
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" || len(ids) >= searchCap {
			return ids, nil
		}
	}
}

func (c *Client) videoDetails(ctx context.Context, ids []string) ([]LiveVideo, error) {
	var out []LiveVideo
	for batch := range slices.Chunk(ids, batchSize) {
		var resp *yt.VideoListResponse
		err := c.call(ctx, MethodVideosList, func(ctx context.Context) error {
			var err error
			resp, err = c.svc.Videos.List([]string{"snippet", "statistics", "liveStreamingDetails", "contentDetails"}).
				Id(batch...).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			out = append(out, toLiveVideo(item))
		}
	}
	return out, nil
}

func toLiveVideo(item *yt.Video) LiveVideo {
	v := LiveVideo{ID: item.Id}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		v.PublishedAt = parseAPITime(s.PublishedAt)
		v.Status = s.LiveBroadcastContent
	}
	if s := item.Statistics; s != nil {
		v.Views = int64(s.ViewCount)
		v.Likes = int64(s.LikeCount)
		v.Comments = int64(s.CommentCount)
	}
	if d := item.LiveStreamingDetails; d != nil {
		v.ActualStart = parseAPITime(d.ActualStartTime)
		v.ActualEnd = parseAPITime(d.ActualEndTime)
	}
	switch {
	case !v.ActualStart.IsZero() && v.ActualEnd.After(v.ActualStart):
		v.Duration = v.ActualEnd.Sub(v.ActualStart)
	case item.ContentDetails != nil:
		v.Duration, _ = ParseISODuration(item.ContentDetails.Duration)
	}
	return v
}

// LiveStatus is a channel's broadcast state at poll time.
type LiveStatus struct {
	Live              bool
	VideoID           string
	Title             string
	ConcurrentViewers int64
}

// LiveNow reports whether channelID is broadcasting and, if so, its current
// audience.
func (c *Client) LiveNow(ctx context.Context, channelID string) (LiveStatus, error) {
	var search *yt.SearchListResponse
	err := c.call(ctx, MethodSearchList, func(ctx context.Context) error {
		var err error
		search, err = c.svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			Type("video").
			EventType("live").
			MaxResults(1).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return LiveStatus{}, err
	}
	if len(search.Items) == 0 || search.Items[0].Id == nil {
		return LiveStatus{}, nil
	}
	item := search.Items[0]
	st := LiveStatus{Live: true, VideoID: item.Id.VideoId}
	if item.Snippet != nil {
		st.Title = item.Snippet.Title
	}

	var videos *yt.VideoListResponse
	err = c.call(ctx, MethodVideosList, func(ctx context.Context) error {
		var err error
		videos, err = c.svc.Videos.List([]string{"liveStreamingDetails"}).Id(st.VideoID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return st, err
	}
	if len(videos.Items) > 0 && videos.Items[0].LiveStreamingDetails != nil {
		st.ConcurrentViewers = int64(videos.Items[0].LiveStreamingDetails.ConcurrentViewers)
	}
	return st, nil
}

func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
