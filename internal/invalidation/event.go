// Package invalidation defines the manual cache invalidation message.
package invalidation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache/keys"
)

const (
	// OpDelete removes the listed keys.
	OpDelete = "del"
	// OpDeleteDays removes the date buckets of Resource for every day in
	// [From, To].
	OpDeleteDays = "del_days"

	maxKeys = 1000
	maxDays = 366
)

type Event struct {
	Version  uint64    `json:"version"`
	Op       string    `json:"op"`
	Keys     []string  `json:"keys,omitempty"`
	Resource string    `json:"resource,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version == 0 {
		return errors.New("version must be positive")
	}
	switch e.Op {
	case OpDelete:
		if len(e.Keys) == 0 {
			return errors.New("keys is required")
		}
		if len(e.Keys) > maxKeys {
			return fmt.Errorf("at most %d keys per event", maxKeys)
		}
		for _, k := range e.Keys {
			if !keys.Valid(k) {
				return fmt.Errorf("invalid key %q", k)
			}
		}
	case OpDeleteDays:
		if strings.TrimSpace(e.Resource) == "" || !keys.Valid(e.Resource) {
			return errors.New("resource is required")
		}
		from, to, err := e.days()
		if err != nil {
			return err
		}
		if to.Before(from) {
			return errors.New("to must not be before from")
		}
		if to.Sub(from) > maxDays*24*time.Hour {
			return fmt.Errorf("at most %d days per event", maxDays)
		}
	default:
		return fmt.Errorf("op must be %s or %s", OpDelete, OpDeleteDays)
	}
	return nil
}

func (e Event) days() (time.Time, time.Time, error) {
	from, err := time.Parse(time.DateOnly, e.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, err := time.Parse(time.DateOnly, e.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}

// CacheKeys expands a validated event into the keys it removes.
func (e Event) CacheKeys() []string {
	if e.Op == OpDelete {
		return e.Keys
	}
	from, to, err := e.days()
	if err != nil {
		return nil
	}
	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, keys.DateBucket(e.Resource, d))
	}
	return out
}
