// Package snapshot reads and writes the monthly CSV snapshots produced by the
// extractor: one channel-summary file per period and one video export per
// channel and period. Reading is defensive: numeric garbage coerces to zero and
// is reported through Diagnostics instead of failing the row.
package snapshot

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/onnwee/chanstats/period"
)

// Live status values written by the extractor (YouTube liveBroadcastContent
// plus "completed" for finished broadcasts found via eventType=completed).
const (
	LiveCompleted = "completed"
	LiveNone      = "none"
	LiveNow       = "live"
	LiveUpcoming  = "upcoming"
)

// Channel is one row of a channel-summary file.
type Channel struct {
	Period              period.Period
	ID                  string
	Name                string
	URL                 string
	Description         string
	Country             string
	PublishedAt         time.Time
	Subscribers         int64
	Views               int64
	VideoCount          int64
	LiveCount           int64
	LivePeriodicityDays float64
	FirstLive           time.Time
	LastLive            time.Time
	Platforms           []string
	Links               []string
	Programs            []string
	ExtractedAt         time.Time
	Notes               string
}

// Video is one row of a per-channel video export.
type Video struct {
	Period      period.Period
	ID          string
	ChannelID   string
	ChannelName string
	Title       string
	URL         string
	Program     string
	MonthRank   int
	PublishedAt time.Time
	Duration    time.Duration
	Views       int64
	Likes       int64
	Comments    int64
	LiveStatus  string
	Platforms   []string
	Links       []string
	ExtractedAt time.Time
}

// Table is a parsed channel-summary file.
type Table struct {
	Period    period.Period
	Path      string
	Channels  []Channel
	Malformed []MalformedField
	// Excluded holds identities removed by the exclude list.
	Excluded []string
}

// Snapshot joins a period's channel table with its video exports.
type Snapshot struct {
	Period      period.Period
	Path        string
	Channels    []Channel
	Videos      map[string][]Video
	Diagnostics Diagnostics
}

// VideosFor returns the joined videos of a channel (nil when it has none).
func (s *Snapshot) VideosFor(channelID string) []Video { return s.Videos[channelID] }

// Channel returns the channel with the given identity.
func (s *Snapshot) Channel(id string) (Channel, bool) {
	for _, c := range s.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

// History is every loadable snapshot in chronological order.
type History struct {
	Snapshots   []*Snapshot
	Diagnostics Diagnostics
}

// Periods lists the loaded periods.
func (h *History) Periods() []period.Period {
	out := make([]period.Period, 0, len(h.Snapshots))
	for _, s := range h.Snapshots {
		out = append(out, s.Period)
	}
	return out
}

// Layout locates snapshot files on disk.
type Layout struct {
	ChannelsDir   string
	VideosDir     string
	ChannelPrefix string
	VideoPrefix   string
}

// DefaultLayout is <dataDir>/channels/report_MM-YYYY.csv and
// <dataDir>/videos/channel_<id>/videos_MM-YYYY.csv.
func DefaultLayout(dataDir string) Layout {
	return Layout{
		ChannelsDir:   filepath.Join(dataDir, "channels"),
		VideosDir:     filepath.Join(dataDir, "videos"),
		ChannelPrefix: "report_",
		VideoPrefix:   "videos_",
	}
}

// ChannelFile is the channel-summary path for p.
func (l Layout) ChannelFile(p period.Period) string {
	return filepath.Join(l.ChannelsDir, l.ChannelPrefix+p.FileStamp()+".csv")
}

// VideoDir is the per-channel export directory.
func (l Layout) VideoDir(channelID string) string {
	return filepath.Join(l.VideosDir, "channel_"+channelID)
}

// VideoFile is the video export path for a channel and period.
func (l Layout) VideoFile(channelID string, p period.Period) string {
	return filepath.Join(l.VideoDir(channelID), l.VideoPrefix+p.FileStamp()+".csv")
}

// videoDirPrefixes are the accepted per-channel directory prefixes; "canal_"
// is what the first generation of the extractor wrote.
var videoDirPrefixes = []string{"channel_", "canal_"}

func channelIDFromDir(name string) (string, bool) {
	for _, prefix := range videoDirPrefixes {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return strings.TrimPrefix(name, prefix), true
		}
	}
	return "", false
}

// ExcludeList holds display-name patterns removed from the working set.
type ExcludeList []string

// ParseExcludeList splits a comma separated list, dropping blanks.
func ParseExcludeList(s string) ExcludeList {
	var out ExcludeList
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Match reports whether name equals or contains any pattern, ignoring case.
func (e ExcludeList) Match(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	return slices.ContainsFunc(e, func(p string) bool {
		return strings.Contains(n, strings.ToLower(p))
	})
}
