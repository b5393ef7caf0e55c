package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"sentinel.org/internal/api"
	"sentinel.org/internal/obs"
)

const serviceName = "sentinel-api"

// Caller runs one API call. *api.Dispatcher satisfies it.
type Caller interface {
	Call(ctx context.Context, req api.Request) api.Response
}

// Pinger reports whether backing storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe: простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	calls      Caller
	readyProbe ReadyProbe
	version    string
	cookies    *CookieSigner
	proxies    TrustedProxies

	maxBodyBytes int64
	rateBurst    int
	ratePerSec   int
}

// Option configures the HTTP layer.
type Option func(*API)

// WithCookieSigner enables the signed session cookie.
func WithCookieSigner(s *CookieSigner) Option {
	return func(a *API) { a.cookies = s }
}

// WithTrustedProxies lets the listed peers report the client address.
func WithTrustedProxies(p TrustedProxies) Option {
	return func(a *API) { a.proxies = p }
}

// WithLimits sets the request body cap and the per-IP rate limit.
func WithLimits(maxBodyBytes int64, burst, perSecond int) Option {
	return func(a *API) {
		if maxBodyBytes > 0 {
			a.maxBodyBytes = maxBodyBytes
		}
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

func New(calls Caller, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		calls:        calls,
		readyProbe:   rp,
		version:      version,
		maxBodyBytes: 1 << 20,
		rateBurst:    50,
		ratePerSec:   20,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/api_jsonrpc", a.JSONRPC)

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RealIP(h, a.proxies)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
