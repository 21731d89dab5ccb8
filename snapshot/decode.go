package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chanstats/period"
)

// Canonical column names, as written by Writer. Readers also accept the
// aliases in channelAliases/videoAliases.
var (
	ChannelHeader = []string{
		"channel_id", "channel_title", "channel_url", "channel_description", "channel_published_at",
		"country", "subscribers", "view_count", "video_count", "month", "live_videos_count",
		"live_periodicity_days", "first_live_date", "last_live_date", "channel_platforms",
		"channel_links", "active_programs", "extract_datetime", "notes",
	}
	VideoHeader = []string{
		"channel_id", "channel_title", "month", "video_id", "video_url", "title", "program_name",
		"rank_month", "published_at", "duration_sec", "view_count", "like_count", "comment_count",
		"live_status", "platforms", "links", "extract_datetime",
	}
)

var channelAliases = map[string][]string{
	"channel_id":            {"channel_id", "CanalID", "ChannelID"},
	"channel_title":         {"channel_title", "Nombre", "Canal", "name"},
	"channel_url":           {"channel_url", "URL"},
	"channel_description":   {"channel_description", "Descripcion"},
	"channel_published_at":  {"channel_published_at"},
	"country":               {"country", "Pais"},
	"subscribers":           {"subscribers", "Suscriptores"},
	"view_count":            {"view_count", "VistasTotales"},
	"video_count":           {"video_count", "CantidadVideos"},
	"month":                 {"month", "Periodo"},
	"live_videos_count":     {"live_videos_count", "CantidadVivosMes"},
	"live_periodicity_days": {"live_periodicity_days"},
	"first_live_date":       {"first_live_date"},
	"last_live_date":        {"last_live_date"},
	"channel_platforms":     {"channel_platforms"},
	"channel_links":         {"channel_links"},
	"active_programs":       {"active_programs"},
	"extract_datetime":      {"extract_datetime"},
	"notes":                 {"notes", "notas"},
}

var videoAliases = map[string][]string{
	"channel_id":       {"channel_id", "CanalID"},
	"channel_title":    {"channel_title", "Nombre"},
	"month":            {"month"},
	"video_id":         {"video_id", "VideoID"},
	"video_url":        {"video_url", "URL"},
	"title":            {"title", "Titulo"},
	"program_name":     {"program_name"},
	"rank_month":       {"rank_month", "ranking_mes"},
	"published_at":     {"published_at", "Fecha"},
	"duration_sec":     {"duration_sec", "DuracionSeg"},
	"view_count":       {"view_count", "Vistas"},
	"like_count":       {"like_count", "Likes"},
	"comment_count":    {"comment_count", "Comentarios"},
	"live_status":      {"live_status"},
	"platforms":        {"platforms"},
	"links":            {"links"},
	"extract_datetime": {"extract_datetime"},
}

type row struct {
	file      string
	line      int
	cols      map[string]int
	rec       []string
	malformed []MalformedField
}

func indexHeader(header []string, aliases map[string][]string) map[string]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		pos[strings.ToLower(h)] = i
	}
	cols := make(map[string]int, len(aliases))
	for key, names := range aliases {
		for _, n := range names {
			if i, ok := pos[strings.ToLower(n)]; ok {
				cols[key] = i
				break
			}
		}
	}
	return cols
}

func (r *row) str(key string) string {
	i, ok := r.cols[key]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *row) bad(key, value string) {
	r.malformed = append(r.malformed, MalformedField{File: r.file, Line: r.line, Column: key, Value: value})
}

// count parses a non-negative counter. Empty values are zero; anything else
// that does not parse is zero and recorded.
func (r *row) count(key string) int64 {
	s := r.str(key)
	if s == "" {
		return 0
	}
	n, ok := parseCount(s)
	if !ok {
		r.bad(key, s)
	}
	return n
}

func (r *row) float(key string) float64 {
	s := r.str(key)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		r.bad(key, s)
		return 0
	}
	return f
}

func (r *row) time(key string) time.Time {
	s := r.str(key)
	if s == "" {
		return time.Time{}
	}
	t, ok := parseTime(s)
	if !ok {
		r.bad(key, s)
	}
	return t
}

func (r *row) list(key string) []string {
	s := r.str(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseCount(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	// pandas round-trips integer columns with NaN as floats ("1200.0")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// spreadsheet exports drop trailing empty cells
	cr.FieldsPerRecord = -1
	return cr
}

func readHeader(cr *csv.Reader, file string) ([]string, error) {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: empty file", ErrCorrupt, file)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, file, err)
	}
	return header, nil
}

// DecodeChannels parses a channel-summary file. Every row is tagged with p,
// the period taken from the file's name; a "month" column is informational.
func DecodeChannels(r io.Reader, file string, p period.Period) (*Table, error) {
	cr := newCSVReader(r)
	header, err := readHeader(cr, file)
	if err != nil {
		return nil, err
	}
	cols := indexHeader(header, channelAliases)
	if _, ok := cols["channel_id"]; !ok {
		return nil, fmt.Errorf("%w: %s: no channel identity column", ErrCorrupt, file)
	}
	t := &Table{Period: p, Path: file}
	seen := map[string]bool{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, file, err)
		}
		line, _ := cr.FieldPos(0)
		rw := &row{file: file, line: line, cols: cols, rec: rec}
		id := rw.str("channel_id")
		if id == "" {
			rw.bad("channel_id", "")
			t.Malformed = append(t.Malformed, rw.malformed...)
			continue
		}
		if seen[id] {
			// duplicate identity in one period: first row wins
			rw.bad("channel_id", id)
			t.Malformed = append(t.Malformed, rw.malformed...)
			continue
		}
		seen[id] = true
		c := Channel{
			Period:              p,
			ID:                  id,
			Name:                rw.str("channel_title"),
			URL:                 rw.str("channel_url"),
			Description:         rw.str("channel_description"),
			Country:             rw.str("country"),
			PublishedAt:         rw.time("channel_published_at"),
			Subscribers:         rw.count("subscribers"),
			Views:               rw.count("view_count"),
			VideoCount:          rw.count("video_count"),
			LiveCount:           rw.count("live_videos_count"),
			LivePeriodicityDays: rw.float("live_periodicity_days"),
			FirstLive:           rw.time("first_live_date"),
			LastLive:            rw.time("last_live_date"),
			Platforms:           rw.list("channel_platforms"),
			Links:               rw.list("channel_links"),
			Programs:            rw.list("active_programs"),
			ExtractedAt:         rw.time("extract_datetime"),
			Notes:               rw.str("notes"),
		}
		if c.Name == "" {
			c.Name = id
		}
		t.Channels = append(t.Channels, c)
		t.Malformed = append(t.Malformed, rw.malformed...)
	}
	return t, nil
}

// DecodeVideos parses a video export. Rows without a channel_id column value
// take fallbackChannel (the owning directory's identity).
func DecodeVideos(r io.Reader, file string, p period.Period, fallbackChannel string) ([]Video, []MalformedField, error) {
	cr := newCSVReader(r)
	header, err := readHeader(cr, file)
	if err != nil {
		return nil, nil, err
	}
	cols := indexHeader(header, videoAliases)
	if _, ok := cols["video_id"]; !ok {
		return nil, nil, fmt.Errorf("%w: %s: no video identity column", ErrCorrupt, file)
	}
	var (
		videos    []Video
		malformed []MalformedField
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, file, err)
		}
		line, _ := cr.FieldPos(0)
		rw := &row{file: file, line: line, cols: cols, rec: rec}
		v := Video{
			Period:      p,
			ID:          rw.str("video_id"),
			ChannelID:   rw.str("channel_id"),
			ChannelName: rw.str("channel_title"),
			Title:       rw.str("title"),
			URL:         rw.str("video_url"),
			Program:     rw.str("program_name"),
			MonthRank:   int(rw.count("rank_month")),
			PublishedAt: rw.time("published_at"),
			Duration:    time.Duration(rw.float("duration_sec") * float64(time.Second)),
			Views:       rw.count("view_count"),
			Likes:       rw.count("like_count"),
			Comments:    rw.count("comment_count"),
			LiveStatus:  strings.ToLower(rw.str("live_status")),
			Platforms:   rw.list("platforms"),
			Links:       rw.list("links"),
			ExtractedAt: rw.time("extract_datetime"),
		}
		if v.ID == "" {
			rw.bad("video_id", "")
			malformed = append(malformed, rw.malformed...)
			continue
		}
		if v.ChannelID == "" {
			v.ChannelID = fallbackChannel
		}
		videos = append(videos, v)
		malformed = append(malformed, rw.malformed...)
	}
	return videos, malformed, nil
}
