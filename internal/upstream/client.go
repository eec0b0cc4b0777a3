// Package upstream talks to the authenticated operations API that owns the
// incident, POP and activity data.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
)

const maxBodyBytes = 32 << 20

// Endpoint names an upstream resource; Name labels logs and metrics.
type Endpoint struct {
	Name string
	URL  string
}

type Config struct {
	LoginURL string
	Username string
	Password string
	Retry    RetryConfig
}

type Client struct {
	cfg   Config
	hc    *http.Client
	log   *slog.Logger
	sleep func(context.Context, time.Duration) error
}

func New(cfg Config, hc *http.Client, log *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, hc: hc, log: log, sleep: sleepCtx}
}

// Fetch logs in, GETs ep with params as the query string and decodes the
// JSON body. Every failure, including a body carrying a truthy "error"
// field, is returned as *Error wrapping ErrUpstream.
func (c *Client) Fetch(ctx context.Context, ep Endpoint, params url.Values) (any, error) {
	start := time.Now()
	v, err := c.fetch(ctx, ep, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var ue *Error
		if errors.As(err, &ue) {
			outcome = string(ue.Stage)
		}
	}
	observability.ObserveUpstream(ep.Name, outcome, time.Since(start).Seconds())
	return v, err
}

func (c *Client) fetch(ctx context.Context, ep Endpoint, params url.Values) (any, error) {
	token, err := c.login(ctx)
	if err != nil {
		return nil, &Error{Endpoint: ep.Name, Stage: StageLogin, Err: err}
	}

	target, err := withQuery(ep.URL, params)
	if err != nil {
		return nil, &Error{Endpoint: ep.Name, Stage: StageTransport, Err: err}
	}

	resp, err := c.getWithRetry(ctx, ep, target, token)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Endpoint: ep.Name, Stage: StageTransport, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Endpoint: ep.Name, Stage: StageStatus, StatusCode: resp.StatusCode}
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Endpoint: ep.Name, Stage: StageDecode, StatusCode: resp.StatusCode, Err: err}
	}
	if m, ok := out.(map[string]any); ok && truthy(m["error"]) {
		return nil, &Error{Endpoint: ep.Name, Stage: StageReported, Err: fmt.Errorf("%v", m["error"])}
	}
	return out, nil
}

// login posts the configured credentials; the response body is the token.
func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("login status %d", resp.StatusCode)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// getWithRetry retries transport failures only. A response with any status
// ends the loop.
func (c *Client) getWithRetry(ctx context.Context, ep Endpoint, target, token string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			d := c.cfg.Retry.Backoff(attempt)
			observability.IncUpstreamRetry(ep.Name)
			c.log.WarnContext(ctx, "upstream transport error, retrying",
				"endpoint", ep.Name, "attempt", attempt, "backoff", d, "err", lastErr)
			if err := c.sleep(ctx, d); err != nil {
				return nil, &Error{Endpoint: ep.Name, Stage: StageTransport, Err: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, &Error{Endpoint: ep.Name, Stage: StageTransport, Err: err}
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, &Error{Endpoint: ep.Name, Stage: StageTransport, Err: ctx.Err()}
		}
		lastErr = err
	}
	return nil, &Error{
		Endpoint: ep.Name,
		Stage:    StageTransport,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, c.cfg.Retry.MaxRetries+1, lastErr),
	}
}

func withQuery(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// truthy follows the loose truthiness upstream uses for its "error" field.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
