package proxy

import (
	"net"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRule forwards one inbound header under Target. When the inbound
// request lacks Source and Default is set, Default supplies the value.
type HeaderRule struct {
	Source  string
	Target  string
	Default func(r *http.Request) string
}

// DefaultHeaderRules is the forwarding allow-list. Headers not named here are
// never sent upstream.
var DefaultHeaderRules = []HeaderRule{
	{Source: "Accept", Target: "Accept", Default: constant("application/json")},
	{Source: "Content-Type", Target: "Content-Type"},
	{Source: "User-Agent", Target: "User-Agent", Default: constant("oncosaferx-edge-proxy")},
	{Source: "Origin", Target: "Origin"},
	{Source: "Authorization", Target: "Authorization"},
	{Source: "Cookie", Target: "Cookie"},
	{Source: "X-Forwarded-For", Target: "X-Forwarded-For", Default: clientIP},
	{Source: "X-Forwarded-Proto", Target: "X-Forwarded-Proto", Default: scheme},
	{Source: "X-Forwarded-Host", Target: "X-Forwarded-Host", Default: host},
	{Source: "X-Request-ID", Target: "X-Request-ID", Default: requestID},
}

// ForwardHeaders builds the upstream header set from r according to rules.
func ForwardHeaders(r *http.Request, rules []HeaderRule) http.Header {
	out := make(http.Header, len(rules))
	for _, rule := range rules {
		if vals := r.Header.Values(rule.Source); len(vals) > 0 {
			for _, v := range vals {
				out.Add(rule.Target, v)
			}
			continue
		}
		if rule.Default != nil {
			if v := rule.Default(r); v != "" {
				out.Set(rule.Target, v)
			}
		}
	}
	return out
}

// hopHeaders are connection-scoped and never relayed back to the client.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func constant(v string) func(*http.Request) string {
	return func(*http.Request) string { return v }
}

func clientIP(r *http.Request) string {
	h, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return h
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func host(r *http.Request) string {
	return r.Host
}

func requestID(*http.Request) string {
	return uuid.NewString()
}
