// Package proxy relays browser requests under a local path prefix to the
// backend API and stamps CORS headers on whatever comes back.
package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var errNoBackend = errors.New("backend URL is not configured")

type Options struct {
	// BackendURL replaces the scheme, host and Prefix of every request,
	// e.g. "https://backend.example.com/api".
	BackendURL string
	Prefix     string
	Timeout    time.Duration
	CORS       CORS
	Headers    []HeaderRule
	Transport  http.RoundTripper
}

type Handler struct {
	backend *url.URL
	prefix  string
	client  *http.Client
	cors    CORS
	headers []HeaderRule
	log     *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Handler, error) {
	h := &Handler{
		prefix:  strings.TrimRight(opts.Prefix, "/"),
		client:  &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		cors:    opts.CORS,
		headers: opts.Headers,
		log:     log,
	}
	if h.headers == nil {
		h.headers = DefaultHeaderRules
	}
	if opts.BackendURL != "" {
		u, err := url.Parse(opts.BackendURL)
		if err != nil {
			return nil, fmt.Errorf("invalid backend URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("backend URL must be absolute, got %q", opts.BackendURL)
		}
		h.backend = u
	}
	return h, nil
}

// UpstreamURL maps an inbound request onto the backend, keeping the part of
// the path after the prefix and the raw query string.
func (h *Handler) UpstreamURL(r *http.Request) (string, error) {
	if h.backend == nil {
		return "", errNoBackend
	}

	rest := r.URL.EscapedPath()
	if h.prefix != "" && (rest == h.prefix || strings.HasPrefix(rest, h.prefix+"/")) {
		rest = strings.TrimPrefix(rest, h.prefix)
	}
	if rest == "" {
		rest = "/"
	}

	u := *h.backend
	rawPath := strings.TrimRight(u.EscapedPath(), "/") + rest
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", fmt.Errorf("invalid request path: %w", err)
	}
	u.Path = path
	u.RawPath = rawPath
	u.RawQuery = r.URL.RawQuery
	u.Fragment = ""
	return u.String(), nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.cors.Apply(w.Header(), r)
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	target, err := h.UpstreamURL(r)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			h.fail(w, r, "", fmt.Errorf("read request body: %w", err))
			return
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	req.Header = ForwardHeaders(r, h.headers)
	reqID := req.Header.Get("X-Request-ID")

	resp, err := h.client.Do(req)
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	defer resp.Body.Close()

	dst := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		dst.Del(k)
	}
	h.cors.Apply(dst, r)
	if reqID != "" && dst.Get("X-Request-ID") == "" {
		dst.Set("X-Request-ID", reqID)
	}

	w.WriteHeader(resp.StatusCode)
	n, copyErr := io.Copy(w, resp.Body)

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", reqID),
	}
	if copyErr != nil {
		h.log.Warn("proxy response copy interrupted", append(fields, zap.Error(copyErr))...)
		return
	}
	h.log.Info("proxied", fields...)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, reqID string, err error) {
	h.log.Error("proxy request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", reqID),
		zap.Error(err),
	)

	h.cors.Apply(w.Header(), r)
	if reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"error":   "Proxy request failed",
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
