package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSPolicy covers the verbs and headers the scheduling API uses.
func DefaultCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Location"},
		MaxAge:         10 * time.Minute,
	}
}

type corsHandler struct {
	origins     []string
	anyOrigin   bool
	credentials bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
	next        http.Handler
}

// WithCORS answers preflight requests itself and decorates the rest. It is a no-op when
// AllowedOrigins is empty.
func WithCORS(p CORSPolicy) Middleware {
	origins := trimAll(p.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	h := corsHandler{
		credentials: p.AllowCredentials,
		methods:     strings.Join(trimAll(p.AllowedMethods), ", "),
		headers:     strings.Join(trimAll(p.AllowedHeaders), ", "),
		exposed:     strings.Join(trimAll(p.ExposedHeaders), ", "),
	}
	for _, o := range origins {
		if o == "*" {
			h.anyOrigin = true
			continue
		}
		h.origins = append(h.origins, strings.ToLower(o))
	}
	if p.MaxAge > 0 {
		h.maxAge = strconv.Itoa(int(p.MaxAge.Seconds()))
	}
	return func(next http.Handler) http.Handler {
		hh := h
		hh.next = next
		return &hh
	}
}

func (c *corsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allow, ok := c.allowOrigin(origin)
	if origin == "" || !ok {
		c.next.ServeHTTP(w, r)
		return
	}

	h := w.Header()
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Origin", allow)
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		setIf(h, "Access-Control-Allow-Methods", c.methods)
		setIf(h, "Access-Control-Allow-Headers", c.headers)
		setIf(h, "Access-Control-Max-Age", c.maxAge)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	setIf(h, "Access-Control-Expose-Headers", c.exposed)
	c.next.ServeHTTP(w, r)
}

// allowOrigin echoes the origin unless "*" is configured without credentials.
func (c *corsHandler) allowOrigin(origin string) (string, bool) {
	lower := strings.ToLower(origin)
	for _, o := range c.origins {
		if o == lower {
			return origin, true
		}
	}
	if c.anyOrigin {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
