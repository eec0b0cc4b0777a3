package daterange

import (
	"errors"
	"testing"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
)

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("2022-06-01 13:45:10.0", "2022-06-05 08:00:00.0")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if !q.Start.Equal(day(2022, 6, 1)) || !q.End.Equal(day(2022, 6, 5)) {
		t.Fatalf("q = %+v", q)
	}
	if n := len(q.Days()); n != 5 {
		t.Fatalf("days = %d, want 5", n)
	}
}

func TestParseQuery_DefaultEnd(t *testing.T) {
	q, err := ParseQuery("2022-06-01 00:00:00.0", "")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if !q.End.Equal(day(2022, 7, 1)) {
		t.Fatalf("End = %v, want 2022-07-01", q.End)
	}
	if n := len(q.Days()); n != 31 {
		t.Fatalf("days = %d, want 31", n)
	}
}

func TestParseQuery_Errors(t *testing.T) {
	cases := []struct {
		inicio, fim, msg string
	}{
		{"", "", `Parameter "inicio" is required.`},
		{"2022-06-01", "", `Parameter "inicio" must be in format %Y-%m-%d %H:%M:%S.0.`},
		{"2022-06-01 00:00:00.0", "01/07/2022", `Parameter "fim" must be in format %Y-%m-%d %H:%M:%S.0.`},
		{"2022-06-01 00:00:00.5", "", `Parameter "inicio" must be in format %Y-%m-%d %H:%M:%S.0.`},
		{"2022-06-01 00:00:00", "", `Parameter "inicio" must be in format %Y-%m-%d %H:%M:%S.0.`},
		{"2022-06-01 00:00:00.0", "2022-06-02 00:00:00.00", `Parameter "fim" must be in format %Y-%m-%d %H:%M:%S.0.`},
		{"2022-06-01 00:00:00.0", "2022-07-02 00:00:00.0", "(fim - inicio) must be less than or equal to 30 days."},
	}
	for _, c := range cases {
		_, err := ParseQuery(c.inicio, c.fim)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("ParseQuery(%q, %q) err = %v, want validation", c.inicio, c.fim, err)
		}
		if err.Error() != c.msg {
			t.Fatalf("msg = %q, want %q", err.Error(), c.msg)
		}
	}
}

func TestParseQuery_ExactlyThirtyDaysAllowed(t *testing.T) {
	if _, err := ParseQuery("2022-06-01 00:00:00.0", "2022-07-01 00:00:00.0"); err != nil {
		t.Fatalf("30 days rejected: %v", err)
	}
	// Time of day is dropped before the span is checked.
	if _, err := ParseQuery("2022-06-01 23:00:00.0", "2022-07-01 22:00:00.0"); err != nil {
		t.Fatalf("30 days rejected: %v", err)
	}
}

func TestEventDay(t *testing.T) {
	d, ok := eventDay(map[string]any{"inicio": "2022-06-09 09:43:26.0"})
	if !ok || !d.Equal(day(2022, 6, 9)) {
		t.Fatalf("eventDay = %v, %v", d, ok)
	}
	for _, bad := range []any{"x", map[string]any{}, map[string]any{"inicio": 5.0}, map[string]any{"inicio": "09/06/2022"}} {
		if _, ok := eventDay(bad); ok {
			t.Fatalf("eventDay(%v) ok", bad)
		}
	}
}
