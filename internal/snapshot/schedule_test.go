package snapshot

import (
	"testing"
	"time"
)

func TestNextPublication(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	at := func(h, m, s int) time.Time { return time.Date(2023, 3, 14, h, m, s, 0, loc) }

	cases := []struct {
		now, want time.Time
	}{
		{at(10, 0, 0), at(10, 8, 0)},
		{at(10, 7, 59), at(10, 8, 0)},
		{at(10, 8, 0), at(10, 18, 0)},
		{at(10, 8, 1), at(10, 18, 0)},
		{at(10, 17, 30), at(10, 18, 0)},
		{at(10, 58, 0), at(11, 8, 0)},
		{at(10, 59, 59), at(11, 8, 0)},
		{at(23, 58, 0), time.Date(2023, 3, 15, 0, 8, 0, 0, loc)},
	}
	for _, c := range cases {
		if got := NextPublication(c.now); !got.Equal(c.want) {
			t.Errorf("NextPublication(%s) = %s, want %s", c.now.Format(time.TimeOnly), got, c.want)
		}
	}
}

func TestTTLUntilNextPublication(t *testing.T) {
	now := time.Date(2023, 3, 14, 10, 12, 30, 0, time.UTC)
	if got, want := TTLUntilNextPublication(now), 5*time.Minute+30*time.Second; got != want {
		t.Fatalf("ttl = %s, want %s", got, want)
	}
	for m := 0; m < 60; m++ {
		ttl := TTLUntilNextPublication(now.Add(time.Duration(m) * time.Minute))
		if ttl <= 0 || ttl > 10*time.Minute {
			t.Fatalf("ttl at +%dm = %s, out of (0, 10m]", m, ttl)
		}
	}
}
