package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream matches every failure returned by Fetch.
	ErrUpstream = errors.New("upstream unavailable")

	// ErrRetryExhausted is wrapped when every transport attempt failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

type Stage string

const (
	StageLogin     Stage = "login"
	StageTransport Stage = "transport"
	StageStatus    Stage = "status"
	StageDecode    Stage = "decode"
	StageReported  Stage = "reported"
)

// Error carries the failing endpoint and stage. It is meant for logs; the
// HTTP surface only ever shows a generic message.
type Error struct {
	Endpoint   string
	Stage      Stage
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("upstream %s: %s failed", e.Endpoint, e.Stage)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}
