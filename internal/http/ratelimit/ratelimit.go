// Package ratelimit provides per-client-IP token bucket limiting.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxVisitors bounds the tracked address set so an address scan cannot grow
// the map without limit.
const maxVisitors = 10000

// Limiter hands out one token bucket per client IP. Client identity honors
// X-Forwarded-For only when the direct peer is a trusted proxy.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	rate    rate.Limit
	burst   int
	idleTTL time.Duration
	proxies []*net.IPNet
}

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// New builds a limiter allowing r requests per second with the given burst.
// Buckets idle for longer than idleTTL are dropped by a background sweep.
// trustedProxies holds CIDR ranges or bare IPs of reverse proxies whose
// forwarding headers are believed.
func New(r rate.Limit, burst int, idleTTL time.Duration, trustedProxies []string) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
		idleTTL:  idleTTL,
		proxies:  parseProxies(trustedProxies),
	}
	go l.sweep()
	return l
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(l.clientIP(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= maxVisitors {
			l.evictOldestLocked()
		}
		v = &visitor{bucket: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.bucket.Allow()
}

func (l *Limiter) evictOldestLocked() {
	var oldest string
	var oldestSeen time.Time
	for ip, v := range l.visitors {
		if oldest == "" || v.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, v.lastSeen
		}
	}
	if oldest != "" {
		delete(l.visitors, oldest)
	}
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.idleTTL)
		l.mu.Lock()
		for ip, v := range l.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) clientIP(r *http.Request) string {
	peer := parseAddr(r.RemoteAddr)

	if len(l.proxies) > 0 && !l.trusted(peer) {
		return peer.String()
	}

	// Leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}
	return peer.String()
}

func (l *Limiter) trusted(ip net.IP) bool {
	for _, ipnet := range l.proxies {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseProxies(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			mask := net.CIDRMask(bits, bits)
			nets = append(nets, &net.IPNet{IP: ip.Mask(mask), Mask: mask})
		}
	}
	return nets
}

func parseAddr(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
