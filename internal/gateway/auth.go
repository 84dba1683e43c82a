package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/actionloop/internal/config"
)

// TokenEnv is read when the config carries no gateway token.
const TokenEnv = "ACTIONLOOP_GATEWAY_TOKEN"

// ResolveToken returns the gateway bearer token. Precedence: config value,
// then environment, then empty (auth disabled).
func ResolveToken(cfg config.GatewayConfig) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	return os.Getenv(TokenEnv)
}

// requestToken extracts the caller's token from the Authorization header,
// falling back to the "token" query parameter for browser websocket clients.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// authorized reports whether r carries the server token. An empty server
// token disables auth.
func authorized(serverToken string, r *http.Request) bool {
	if serverToken == "" {
		return true
	}
	tok := requestToken(r)
	return tok != "" && safeEqual(tok, serverToken)
}

// safeEqual performs a constant-time string comparison.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// authRateLimiter tracks failed auth attempts per IP to slow brute-force attempts.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000 // max tracked IPs
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}
	return host
}

// prune drops failures older than the window. Caller holds mu.
func (l *authRateLimiter) prune(host string) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	recent := l.failures[host]
	filtered := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = filtered
	return filtered
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(host)) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], l.now())
}

// requireAuth rejects requests without the server token. Repeated failures
// from one address are answered with 429 until the window passes.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many failed auth attempts")
			return
		}
		if !authorized(s.token, r) {
			s.authLimiter.recordFailure(r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="actionloop"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}
