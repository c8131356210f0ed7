package proxy

import (
	"net/http"
	"strings"
)

const (
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders = "Accept, Authorization, Content-Type, Origin, X-Requested-With, X-Request-ID"
)

// CORS decides which origin a response is addressed to.
//
// With no AllowedOrigins the request Origin is echoed unconditionally. With a
// list, only listed origins are echoed; every other caller gets LocalOrigin.
type CORS struct {
	LocalOrigin    string
	AllowedOrigins []string
}

func (c CORS) permits(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, o := range c.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (c CORS) localOrigin(r *http.Request) string {
	if c.LocalOrigin != "" {
		return c.LocalOrigin
	}
	return scheme(r) + "://" + r.Host
}

// AllowOrigin returns the value for Access-Control-Allow-Origin.
func (c CORS) AllowOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && c.permits(origin) {
		return origin
	}
	return c.localOrigin(r)
}

// Apply overwrites the CORS headers in h for a response to r.
func (c CORS) Apply(h http.Header, r *http.Request) {
	for k := range h {
		if strings.HasPrefix(k, "Access-Control-Allow-") {
			h.Del(k)
		}
	}

	h.Set("Access-Control-Allow-Origin", c.AllowOrigin(r))
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", allowMethods)
	if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	} else {
		h.Set("Access-Control-Allow-Headers", allowHeaders)
	}

	vary := h.Values("Vary")
	for _, v := range vary {
		if strings.Contains(strings.ToLower(v), "origin") {
			return
		}
	}
	h.Add("Vary", "Origin")
}
