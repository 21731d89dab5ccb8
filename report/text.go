package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
)

// Template names a social-media text layout.
type Template string

const (
	TemplateSummary   Template = "summary"
	TemplateInstagram Template = "instagram"
	TemplateLinkedIn  Template = "linkedin"
)

// Templates lists every text layout.
var Templates = []Template{TemplateSummary, TemplateInstagram, TemplateLinkedIn}

// ParseTemplate accepts a Template name.
func ParseTemplate(s string) (Template, error) {
	t := Template(strings.ToLower(s))
	if !slices.Contains(Templates, t) {
		return "", fmt.Errorf("unknown template %q (want one of %v)", s, Templates)
	}
	return t, nil
}

// DefaultTop is how many channels a ranking text lists.
const DefaultTop = 10

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"pct": func(f float64) string { return fmt.Sprintf("%+.1f%%", f) },
	"dec": func(f float64) string { return fmt.Sprintf("%.2f", f) },
}

var textTemplates = template.Must(template.New("text").Funcs(funcs).Parse(`
{{- define "summary" -}}
Live broadcast summary - {{.Label}}

Top channels by live views:
{{range $i, $r := .ByLiveViews}}{{inc $i}}. {{$r.ChannelName}} - {{$r.LiveViews}} views in {{$r.LiveBroadcasts}} broadcasts
{{end}}
Average broadcasts per channel: {{printf "%.1f" .AvgBroadcasts}}
{{- if .NoLives}}

Channels with no live broadcasts:
{{range .NoLives}}- {{.ChannelName}}
{{end}}{{end}}
{{end -}}

{{- define "instagram" -}}
STREAMING RANKING {{.Label}}
Who gets the most views per follower?

{{range $i, $r := .ByRatio}}{{inc $i}}. {{$r.ChannelName}} - {{dec $r.ViewsPerSubscriber}} views per subscriber
{{end}}
The higher the number, the more active the community: not just how many follow, but how many watch.

#YouTube #Streaming #Data
{{end -}}

{{- define "linkedin" -}}
Monthly report - YouTube channels - {{.Label}}
{{with .TopGrowth}}
Fastest growing: {{.ChannelName}} ({{pct .SubscribersGrowthPct}} subscribers, {{.SubscribersDelta}} new)
{{- end}}
{{- with .MostLives}}
Most live broadcasts: {{.ChannelName}} ({{.LiveBroadcasts}} broadcasts)
{{- end}}

Top 3 by total views:
{{range $i, $r := .ByViews}}{{inc $i}}. {{$r.ChannelName}} - {{$r.Views}} views
{{end}}
Views per subscriber is a better signal of an active community than subscriber count alone.

#YouTube #Streaming #PlatformEconomy #Analytics
{{end -}}
`))

type textData struct {
	Period        period.Period
	Label         string
	ByLiveViews   []metrics.Row
	ByRatio       []metrics.Row
	ByViews       []metrics.Row
	NoLives       []metrics.Row
	AvgBroadcasts float64
	TopGrowth     *metrics.Row
	MostLives     *metrics.Row
}

// RenderSummaryText renders tmpl over the latest period in rows, listing
// DefaultTop channels.
func RenderSummaryText(rows []metrics.Row, tmpl Template) (string, error) {
	return RenderSummaryTextTop(rows, tmpl, DefaultTop)
}

// RenderSummaryTextTop is RenderSummaryText listing top channels.
func RenderSummaryTextTop(rows []metrics.Row, tmpl Template, top int) (string, error) {
	if _, err := ParseTemplate(string(tmpl)); err != nil {
		return "", err
	}
	rows = metrics.Latest(rows)
	if len(rows) == 0 {
		return "", fmt.Errorf("render %s: no rows", tmpl)
	}
	data := buildTextData(rows, top)
	var b strings.Builder
	if err := textTemplates.ExecuteTemplate(&b, string(tmpl), data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl, err)
	}
	return b.String(), nil
}

func buildTextData(rows []metrics.Row, top int) textData {
	d := textData{Period: rows[0].Period, Label: rows[0].Period.Start().Format("January 2006")}

	byLive := slices.Clone(rows)
	slices.SortStableFunc(byLive, func(a, b metrics.Row) int {
		if c := cmp.Compare(b.LiveViews, a.LiveViews); c != 0 {
			return c
		}
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
	var broadcasts int
	for _, r := range byLive {
		broadcasts += r.LiveBroadcasts
		if r.LiveBroadcasts == 0 {
			d.NoLives = append(d.NoLives, r)
		}
	}
	d.AvgBroadcasts = float64(broadcasts) / float64(len(rows))
	byLive = slices.DeleteFunc(byLive, func(r metrics.Row) bool { return r.LiveBroadcasts == 0 })
	if top > 0 && len(byLive) > top {
		byLive = byLive[:top]
	}
	d.ByLiveViews = byLive

	d.ByRatio = Top(rows, top, metrics.KeyRatio)
	d.ByViews = Top(rows, 3, metrics.KeyViews)

	for i := range rows {
		r := &rows[i]
		// largest absolute subscriber gain, ties by channel id
		if r.SubscribersDelta > 0 && (d.TopGrowth == nil || r.SubscribersDelta > d.TopGrowth.SubscribersDelta ||
			r.SubscribersDelta == d.TopGrowth.SubscribersDelta && r.ChannelID < d.TopGrowth.ChannelID) {
			d.TopGrowth = r
		}
		if r.LiveBroadcasts > 0 && (d.MostLives == nil || r.LiveBroadcasts > d.MostLives.LiveBroadcasts) {
			d.MostLives = r
		}
	}
	return d
}
