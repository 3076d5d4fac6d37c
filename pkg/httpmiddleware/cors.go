package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS for the storefront and admin console.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	// A single leading wildcard label is supported, e.g.
	// "https://*.preview.example.com".
	AllowOrigins []string
	// AllowMethods defaults to GET, POST and OPTIONS.
	AllowMethods []string
	// AllowHeaders is sent on preflight. When empty the requested headers
	// are echoed.
	AllowHeaders []string
	// ExposeHeaders is added to X-Request-ID, which is always exposed.
	ExposeHeaders []string
	// AllowCredentials echoes the request origin instead of "*".
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0".
	MaxAge int
}

// originPattern matches "scheme://*.suffix" origins.
type originPattern struct {
	prefix string // "https://"
	suffix string // ".preview.example.com"
}

func (p originPattern) match(origin string) bool {
	if len(origin) <= len(p.prefix)+len(p.suffix) {
		return false
	}
	if !strings.HasPrefix(origin, p.prefix) || !strings.HasSuffix(origin, p.suffix) {
		return false
	}
	label := origin[len(p.prefix) : len(origin)-len(p.suffix)]
	return !strings.ContainsAny(label, "/:")
}

type corsPolicy struct {
	anyOrigin   bool
	echoOrigin  bool
	exact       map[string]string // lowercase -> configured spelling
	patterns    []originPattern
	methods     string
	headers     string
	expose      string
	maxAge      string
	credentials bool
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		anyOrigin:   len(cfg.AllowOrigins) == 0,
		exact:       make(map[string]string, len(cfg.AllowOrigins)),
		methods:     "GET, POST, OPTIONS",
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(append([]string{RequestIDHeader}, cfg.ExposeHeaders...), ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		lower := strings.ToLower(strings.TrimSpace(o))
		switch {
		case lower == "*":
			p.anyOrigin = true
		case strings.Contains(lower, "://*."):
			i := strings.Index(lower, "*")
			p.patterns = append(p.patterns, originPattern{prefix: lower[:i], suffix: lower[i+1:]})
		case lower != "":
			p.exact[lower] = strings.TrimSpace(o)
		}
	}
	if p.credentials && p.anyOrigin {
		// Browsers reject "*" together with credentials.
		p.anyOrigin, p.echoOrigin = false, true
	}
	if len(cfg.AllowMethods) > 0 {
		p.methods = strings.Join(cfg.AllowMethods, ", ")
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.anyOrigin:
		return "*"
	case p.echoOrigin:
		return origin
	}
	lower := strings.ToLower(origin)
	if configured, ok := p.exact[lower]; ok {
		return configured
	}
	for _, pat := range p.patterns {
		if pat.match(lower) {
			return origin
		}
	}
	return ""
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")
	if allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", p.methods)
		if p.headers != "" {
			h.Set("Access-Control-Allow-Headers", p.headers)
		} else if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		}
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	// Disallowed origins get a bare 204 and the browser blocks the request.
	w.WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) actual(w http.ResponseWriter, allow string) {
	h := w.Header()
	if !p.anyOrigin {
		h.Add("Vary", "Origin")
	}
	if allow == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allow)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	h.Set("Access-Control-Expose-Headers", p.expose)
}

// CORS answers preflight requests itself and decorates actual cross-origin
// responses. Requests without an Origin header pass through untouched apart
// from Vary.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				p.actual(w, "")
				next.ServeHTTP(w, r)
				return
			}

			allow := p.allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, allow)
				return
			}
			p.actual(w, allow)
			next.ServeHTTP(w, r)
		})
	}
}
