// Package middleware holds the HTTP cross-cutting layers for the API server:
// CORS, API-key auth, shared rate limiting, and access logging.
package middleware

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/obagg/internal/domain"
)

// CORS answers preflight requests and stamps allow headers for origins in
// allowed. An empty list allows every origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
			continue
		}
		origins[strings.ToLower(o)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, ok := origins[strings.ToLower(origin)]
				if allowAll || ok {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
					if r.Method == http.MethodOptions {
						h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
						h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
						h.Set("Access-Control-Max-Age", "86400")
					}
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKey rejects requests that do not present the configured key, either as
// "X-API-Key: <key>" or "Authorization: Bearer <key>". An empty key disables
// the check. Paths in exempt always pass, so health probes work without
// credentials.
func APIKey(key string, exempt ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		open[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			presented := credential(r)
			if presented == "" {
				reject(w, http.StatusUnauthorized, "missing API key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				reject(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credential pulls the presented key out of X-API-Key or a Bearer token.
func credential(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// RateLimit enforces limit requests per window per client through the shared
// limiter. Limiter outages fail open so a Redis blip cannot take the API
// down with it.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	limitHeader := strconv.Itoa(limit)
	retryAfter := strconv.Itoa(max(int(window.Seconds()), 1))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), "api:"+clientIP(r), limit, window)
			if err != nil {
				if !errors.Is(err, r.Context().Err()) {
					logger.WarnContext(r.Context(), "rate limiter unavailable",
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limitHeader)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set("Retry-After", retryAfter)
				reject(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the originating address, trusting proxy headers when
// present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// reject writes a small JSON error body without pulling in the handler
// package.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// AccessLog emits one structured line per request. Each response carries an
// X-Request-ID, either propagated from the client or minted here, and the
// same id appears in the log line for correlation.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", rid)

			rec := statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(&rec, r)

			logger.InfoContext(r.Context(), "request completed",
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote", clientIP(r)),
			)
		})
	}
}

// statusRecorder captures the status code and body size on the way through.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// Hijack keeps WebSocket upgrades working behind the access log.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}
