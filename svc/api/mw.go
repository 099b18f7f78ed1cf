package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pastry/cfg"
	"pastry/metrics"
	"pastry/pkg/domain"
	"pastry/svc/db"
	"pastry/svc/lim"
	"pastry/svc/util"
)

type Mw struct {
	throttle *lim.Throttle
	db       *db.SQLite
	rdb      *db.Redis
	cfg      *cfg.Cfg
}

func NewMw(throttle *lim.Throttle, sqlDB *db.SQLite, rdb *db.Redis, c *cfg.Cfg) *Mw {
	return &Mw{throttle: throttle, db: sqlDB, rdb: rdb, cfg: c}
}

func (m *Mw) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := util.NewRequestID()
		ctx := util.SetRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Mw) ContextTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), m.cfg.ContextTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Mw) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

func (m *Mw) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := util.GetRequestID(r.Context())
				util.Error().
					Interface("panic", rvr).
					Str("request_id", requestID).
					Msg("panic recovered")
				if w.Header().Get("Content-Type") == "" {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error":      "internal server error",
						"request_id": requestID,
					})
				}
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Throttle rejects over-limit clients. With Redis the window is shared
// across instances; without it, or when Redis errors, the in-process
// bucket decides alone.
func (m *Mw) Throttle(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.allow(r, endpoint) {
				util.Warn().
					Str("ip", util.RedactIP(lim.GetRealIP(r, m.cfg.TrustedProxies))).
					Str("endpoint", endpoint).
					Msg("throttle limit exceeded")
				metrics.ThrottleHits.WithLabelValues(endpoint).Inc()
				w.Header().Set("Retry-After", "60")
				writeErr(w, domain.ErrRateLimited, util.GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Mw) allow(r *http.Request, endpoint string) bool {
	if m.rdb != nil {
		ip := lim.GetRealIP(r, m.cfg.TrustedProxies)
		usage, err := m.rdb.RateLimit(r.Context(), "rl:"+endpoint+":"+ip, m.cfg.Throttle.RPM, time.Minute)
		if err == nil {
			return usage <= m.cfg.Throttle.RPM
		}
		util.Debug().Err(err).Msg("redis rate limit unavailable, using local bucket")
	}
	return m.throttle.Allow(r)
}

func (m *Mw) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, candidate := range m.cfg.AllowedOrigins {
			if candidate == "*" || origin == candidate {
				allowed = true
				break
			}
		}
		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Paste-Password")
			w.Header().Set("Access-Control-Max-Age", "300")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Mw) JSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (m *Mw) BasicAuthMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.MetricsUser == "" && m.cfg.MetricsPass.Value() == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		userMatch := 0
		passMatch := 0
		if ok {
			userMatch = subtle.ConstantTimeCompare([]byte(user), []byte(m.cfg.MetricsUser))
			passMatch = subtle.ConstantTimeCompare([]byte(pass), []byte(m.cfg.MetricsPass.Value()))
		}
		if !ok || userMatch != 1 || passMatch != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requesterKey struct{}

// Identify resolves the caller from the Authorization header. Missing,
// unknown or suspended tokens resolve to an anonymous requester; the
// request still proceeds.
func (m *Mw) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := domain.Requester{
			IP: lim.GetRealIP(r, m.cfg.TrustedProxies),
		}
		if token := bearerToken(r); token != "" {
			user, err := m.db.GetUserByToken(r.Context(), token)
			if err != nil {
				util.Warn().Err(err).Msg("token lookup failed")
			} else if user != nil && !user.Suspended() {
				req.UserID = user.ID
				req.Name = user.Name
				req.Role = user.Role
				req.Authenticated = true
			}
		}
		ctx := context.WithValue(r.Context(), requesterKey{}, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func requesterFrom(r *http.Request) domain.Requester {
	if req, ok := r.Context().Value(requesterKey{}).(domain.Requester); ok {
		return req
	}
	return domain.Requester{}
}
