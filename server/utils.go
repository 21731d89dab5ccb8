package server

import (
	"net/http"
	"strconv"

	"github.com/onnwee/chanstats/period"
)

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parsePeriodQuery reads a YYYY-MM parameter; ok is false when it is absent.
func parsePeriodQuery(r *http.Request, key string) (p period.Period, ok bool, err error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return period.Period{}, false, nil
	}
	p, err = period.Parse(v)
	if err != nil {
		return period.Period{}, false, err
	}
	return p, true, nil
}
