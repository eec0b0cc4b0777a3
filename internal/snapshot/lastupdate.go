package snapshot

import (
	"fmt"
	"time"
)

var lastUpdateLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	LastUpdateFormat,
}

// ParseLastUpdate accepts the timestamp shapes the pipeline has written:
// RFC 3339, or a zone-less date-time taken in loc. Numbers are Unix seconds.
func ParseLastUpdate(v any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch x := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.In(loc), nil
		}
		for _, layout := range lastUpdateLayouts {
			if t, err := time.ParseInLocation(layout, x, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized last_update %q", x)
	case float64:
		return time.Unix(int64(x), 0).In(loc), nil
	case int64:
		return time.Unix(x, 0).In(loc), nil
	case uint64:
		return time.Unix(int64(x), 0).In(loc), nil
	case int:
		return time.Unix(int64(x), 0).In(loc), nil
	default:
		return time.Time{}, fmt.Errorf("last_update has type %T", v)
	}
}
