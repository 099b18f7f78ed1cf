package lim

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pastry/svc/util"
)

const (
	maxBuckets      = 10000
	cleanupInterval = 5 * time.Minute
	bucketTTL       = 30 * time.Minute
)

// Throttle is the HTTP-level per-IP token bucket, separate from the
// per-identity paste quota. It protects read endpoints and absorbs
// bursts before the quota is even consulted.
type Throttle struct {
	rpm            int
	burst          int
	trustedProxies []string

	mu      sync.Mutex
	buckets map[string]*bucketEntry
	quit    chan struct{}
}

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewThrottle(rpm, burst int, trustedProxies []string) *Throttle {
	t := &Throttle{
		rpm:            rpm,
		burst:          burst,
		trustedProxies: trustedProxies,
		buckets:        make(map[string]*bucketEntry),
		quit:           make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

func (t *Throttle) Stop() {
	close(t.quit)
}

// Allow reports whether a request from r may proceed.
func (t *Throttle) Allow(r *http.Request) bool {
	ip := GetRealIP(r, t.trustedProxies)
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buckets) >= maxBuckets {
		if _, ok := t.buckets[ip]; !ok {
			util.Warn().Int("buckets", len(t.buckets)).Msg("throttle at capacity, rejecting new client")
			return false
		}
	}
	entry, ok := t.buckets[ip]
	if !ok {
		entry = &bucketEntry{
			limiter: rate.NewLimiter(rate.Limit(t.rpm)/60.0, t.burst),
		}
		t.buckets[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter.Allow()
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.evictStale()
		case <-t.quit:
			return
		}
	}
}

func (t *Throttle) evictStale() {
	now := time.Now()
	t.mu.Lock()
	evicted := 0
	for key, entry := range t.buckets {
		if now.Sub(entry.lastAccess) > bucketTTL {
			delete(t.buckets, key)
			evicted++
		}
	}
	remaining := len(t.buckets)
	t.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("throttle cleanup")
	}
}

// GetRealIP resolves the client address, walking X-Forwarded-For from
// the right only while hops are trusted proxies.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(parts[i])
		if ipStr == "" {
			continue
		}
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", ipStr).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") {
			_, subnet, err := net.ParseCIDR(proxy)
			if err == nil {
				parsedIP := net.ParseIP(ip)
				if parsedIP != nil && subnet.Contains(parsedIP) {
					return true
				}
			}
		}
	}
	return false
}

func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
