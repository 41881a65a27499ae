// Package auth guards the admin endpoints with a shared secret, an optional
// client CIDR allowlist and a per-IP failure throttle.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const SecretHeader = "X-Admin-Secret"

const (
	failWindow = 5 * time.Minute
	blockFor   = 10 * time.Minute
	maxFails   = 5
)

type Guard struct {
	secret []byte
	cidrs  []*net.IPNet
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]attempt
}

type attempt struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// New builds a guard. An empty allowlist admits every client address.
func New(secret string, allowedCIDRs []string, log *slog.Logger) (*Guard, error) {
	if log == nil {
		log = slog.Default()
	}
	g := &Guard{
		secret:   []byte(strings.TrimSpace(secret)),
		log:      log,
		now:      time.Now,
		attempts: make(map[string]attempt),
	}
	for _, s := range allowedCIDRs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("admin cidr %q: %w", s, err)
		}
		g.cidrs = append(g.cidrs, n)
	}
	return g, nil
}

func (g *Guard) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r.RemoteAddr)
		if len(g.cidrs) > 0 && !g.allowIP(ip) {
			g.log.Warn("admin request outside allowlist", "remote", r.RemoteAddr, "path", r.URL.Path)
			deny(w, http.StatusForbidden, "forbidden")
			return
		}
		if g.isBlocked(ip) {
			deny(w, http.StatusTooManyRequests, "too many failed attempts; try again later")
			return
		}
		secret := r.Header.Get(SecretHeader)
		if secret == "" {
			secret = r.URL.Query().Get("secret")
		}
		if !g.validSecret(secret) {
			g.recordFailure(ip)
			g.log.Warn("admin secret rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			deny(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		g.clearAttempts(ip)
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (g *Guard) validSecret(v string) bool {
	vb := []byte(strings.TrimSpace(v))
	if len(vb) == 0 || len(g.secret) == 0 {
		return false
	}
	if len(vb) != len(g.secret) {
		return false
	}
	return subtle.ConstantTimeCompare(vb, g.secret) == 1
}

func (g *Guard) allowIP(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range g.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (g *Guard) isBlocked(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[ip]
	if !ok {
		return false
	}
	now := g.now()
	if !a.blockedUntil.IsZero() {
		if now.Before(a.blockedUntil) {
			return true
		}
		delete(g.attempts, ip)
	}
	return false
}

func (g *Guard) recordFailure(ip string) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gcLocked(now)
	a := g.attempts[ip]
	if a.windowStart.IsZero() || now.Sub(a.windowStart) > failWindow {
		a = attempt{windowStart: now}
	}
	a.fails++
	if a.fails >= maxFails {
		a.blockedUntil = now.Add(blockFor)
	}
	g.attempts[ip] = a
}

func (g *Guard) clearAttempts(ip string) {
	g.mu.Lock()
	delete(g.attempts, ip)
	g.mu.Unlock()
}

func (g *Guard) gcLocked(now time.Time) {
	for ip, a := range g.attempts {
		if (!a.blockedUntil.IsZero() && now.After(a.blockedUntil)) || now.Sub(a.windowStart) > 30*time.Minute {
			delete(g.attempts, ip)
		}
	}
}
