package youtubeapi

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

type platformPattern struct {
	name string
	re   *regexp.Regexp
}

// platformPatterns are checked in order; a text can match several.
var platformPatterns = []platformPattern{
	{"Cafecito", regexp.MustCompile(`(?i)cafecito\.app`)},
	{"MercadoPago", regexp.MustCompile(`(?i)mercadopago\.com|mpago\.la`)},
	{"PayPal", regexp.MustCompile(`(?i)paypal\.me|paypal\.com`)},
	{"Patreon", regexp.MustCompile(`(?i)patreon\.com`)},
	{"Twitch", regexp.MustCompile(`(?i)twitch\.tv`)},
	{"Instagram", regexp.MustCompile(`(?i)instagram\.com|instagr\.am`)},
	{"TikTok", regexp.MustCompile(`(?i)tiktok\.com`)},
	{"Discord", regexp.MustCompile(`(?i)discord\.gg|discord\.com`)},
	{"Telegram", regexp.MustCompile(`(?i)\bt\.me\b|telegram\.me|telegram\.org`)},
	{"Facebook", regexp.MustCompile(`(?i)facebook\.com|fb\.me`)},
	{"OnlyFans", regexp.MustCompile(`(?i)onlyfans\.com`)},
	{"Website", regexp.MustCompile(`(?i)\.com\.ar|\.com|\.net|\.org`)},
	{"Sponsors", regexp.MustCompile(`(?i)\bbet|casino|apuesta|sponsor|promo|descuento|código`)},
}

// DetectPlatforms names the support, social and sponsor platforms mentioned
// in a channel or video description.
func DetectPlatforms(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, p := range platformPatterns {
		if p.re.MatchString(text) {
			out = append(out, p.name)
		}
	}
	return out
}

var linkPattern = regexp.MustCompile(`https?://[^\s)]+`)

// ExtractLinks returns every http(s) URL in text, in order.
func ExtractLinks(text string) []string {
	return linkPattern.FindAllString(text, -1)
}

var programPrefix = regexp.MustCompile(`^(.+?)[\s\-:|]+`)

func titlePrefix(title string) string {
	if m := programPrefix.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	if f := strings.Fields(title); len(f) > 0 {
		return f[0]
	}
	return ""
}

// GuessPrograms counts title prefixes (the text before the first separator)
// and keeps those seen at least minCount times. Recurring shows on a channel
// share such a prefix.
func GuessPrograms(titles []string, minCount int) map[string]int {
	counts := map[string]int{}
	for _, t := range titles {
		if p := titlePrefix(t); p != "" {
			counts[p]++
		}
	}
	for p, n := range counts {
		if n < minCount {
			delete(counts, p)
		}
	}
	return counts
}

// ProgramNames returns the guessed programs most frequent first.
func ProgramNames(programs map[string]int) []string {
	names := make([]string, 0, len(programs))
	for p := range programs {
		names = append(names, p)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(programs[b], programs[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return names
}

// AssignProgram returns the longest prefix that title starts with, or "".
func AssignProgram(title string, prefixes []string) string {
	best := ""
	for _, p := range prefixes {
		if strings.HasPrefix(title, p) && len(p) > len(best) {
			best = p
		}
	}
	return best
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses the ISO 8601 durations the Data API returns in
// contentDetails.duration ("PT1H2M3S", "P1DT2H").
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, u := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", s, err)
		}
		d += time.Duration(n) * u
	}
	return d, nil
}
