package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Check is one readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Fn: p.Ping}
}

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

var errNotReady = errors.New("not ready")

// ReporterCheck adapts a component that tracks its own readiness, such as
// the invalidation consumer waiting for partition assignment.
func ReporterCheck(name string, rr ReadinessReporter) Check {
	return Check{Name: name, Fn: func(context.Context) error {
		if ready, _ := rr.Readiness(); !ready {
			return errNotReady
		}
		return nil
	}}
}

// Readiness runs every check within timeout and answers 503 when any fails.
func Readiness(timeout time.Duration, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := resp{Status: "ready", Checks: make(map[string]string, len(checks))}
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[c.Name] = err.Error()
				continue
			}
			out.Checks[c.Name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
