// Package httpclient configures the HTTP client used to call the operations
// API.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// NewOutbound creates the shared outbound client. All calls go to one
// upstream host, so the idle pool is sized per host.
func NewOutbound(o Options) *http.Client {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	var rt http.RoundTripper = transport
	if o.UserAgent != "" {
		rt = userAgent{next: transport, ua: o.UserAgent}
	}
	return &http.Client{
		Transport: rt,
		Timeout:   o.Timeout,
	}
}

type userAgent struct {
	next http.RoundTripper
	ua   string
}

func (u userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") == "" {
		r = r.Clone(r.Context())
		r.Header.Set("User-Agent", u.ua)
	}
	return u.next.RoundTrip(r)
}
