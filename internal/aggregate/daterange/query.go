package daterange

import (
	"errors"
	"strings"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
)

const (
	// DateFormat is the upstream timestamp layout, e.g. 2022-06-09 09:43:26.0.
	DateFormat = "2006-01-02 15:04:05.0"

	// MaxSpanDays bounds fim - inicio.
	MaxSpanDays = 30

	// clientFormat is how the layout is spelled in error messages.
	clientFormat = "%Y-%m-%d %H:%M:%S.0"
)

// Query is a date range with both ends at midnight UTC. Dates are calendar
// days without a zone, as upstream sends them.
type Query struct {
	Start time.Time
	End   time.Time
}

// ParseQuery validates the inicio/fim request parameters. fim is optional
// and defaults to inicio + 30 days.
func ParseQuery(inicio, fim string) (Query, error) {
	if inicio == "" {
		return Query{}, apperr.Invalid("inicio", `Parameter "inicio" is required.`)
	}
	start, err := parseTimestamp(inicio)
	if err != nil {
		return Query{}, apperr.Invalid("inicio", `Parameter "inicio" must be in format %s.`, clientFormat)
	}
	start = midnight(start)

	if fim == "" {
		return Query{Start: start, End: start.AddDate(0, 0, MaxSpanDays)}, nil
	}
	end, err := parseTimestamp(fim)
	if err != nil {
		return Query{}, apperr.Invalid("fim", `Parameter "fim" must be in format %s.`, clientFormat)
	}
	end = midnight(end)
	if end.After(start.AddDate(0, 0, MaxSpanDays)) {
		return Query{}, apperr.Invalid("fim", "(fim - inicio) must be less than or equal to %d days.", MaxSpanDays)
	}
	return Query{Start: start, End: end}, nil
}

// Days lists every calendar day in [Start, End]. It is empty when End is
// before Start.
func (q Query) Days() []time.Time {
	var out []time.Time
	for d := q.Start; !d.After(q.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// parseTimestamp reads DateFormat. The fractional part must be the literal
// ".0"; Go's layout alone would accept any single digit.
func parseTimestamp(s string) (time.Time, error) {
	base, ok := strings.CutSuffix(s, ".0")
	if !ok {
		return time.Time{}, errors.New(`missing ".0" suffix`)
	}
	return time.Parse(time.DateTime, base)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// eventDay extracts the calendar day of an upstream start timestamp. Only
// the leading YYYY-MM-DD is significant.
func eventDay(ev any) (time.Time, bool) {
	m, ok := ev.(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	s, ok := m["inicio"].(string)
	if !ok || len(s) < len("2006-01-02") {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
