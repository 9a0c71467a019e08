// Package auth gates OPDS requests behind shared-secret Basic credentials,
// with per-IP banning and optional per-client "remember me".
package auth

import (
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Realm is the Basic auth realm announced to clients.
const Realm = "TinyOPDS"

// Credential is one user/password pair.
type Credential struct {
	User     string
	Password string
}

// ParseCredentials splits the decrypted "user:pass[;user:pass]…" string.
func ParseCredentials(s string) []Credential {
	var creds []Credential
	for _, pair := range strings.Split(s, ";") {
		user, pass, ok := strings.Cut(pair, ":")
		if ok && user != "" {
			creds = append(creds, Credential{User: user, Password: pass})
		}
	}
	return creds
}

// Options configure the guard.
type Options struct {
	Enabled         bool
	RememberClients bool
	BanClients      bool
	BanThreshold    int
	Credentials     []Credential
}

// Guard is the auth gate shared by all request handlers.
type Guard struct {
	opts  Options
	stats *Stats

	mu         sync.Mutex
	authorized map[string]struct{}
	banned     map[string]int
	clients    map[string]struct{}
}

// NewGuard creates a guard with the given policy.
func NewGuard(opts Options, stats *Stats) *Guard {
	if opts.BanThreshold <= 0 {
		opts.BanThreshold = 3
	}
	return &Guard{
		opts:       opts,
		stats:      stats,
		authorized: map[string]struct{}{},
		banned:     map[string]int{},
		clients:    map[string]struct{}{},
	}
}

// UniqueClients returns how many distinct client fingerprints were seen.
func (g *Guard) UniqueClients() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Middleware authenticates each request. Evaluation order: banned IPs are
// refused outright, remembered clients pass, then Basic credentials are
// checked; failures feed the ban counter.
func (g *Guard) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		g.stats.AddRequest()

		clientIP := remoteIP(c)
		clientHash := ClientHash(c.Request().UserAgent(), clientIP)
		g.rememberClient(clientHash)

		if !g.opts.Enabled {
			return next(c)
		}

		if g.opts.BanClients && g.bannedOut(clientIP) {
			// Already banned: no credential check, no counter increment.
			return c.String(http.StatusForbidden, "Forbidden")
		}

		if g.opts.RememberClients && g.isAuthorized(clientHash) {
			return next(c)
		}

		if user, pass, ok := basicCredentials(c.Request()); ok {
			for _, cred := range g.opts.Credentials {
				if cred.User == user && cred.Password == pass {
					g.stats.AddGoodLogin()
					if g.opts.RememberClients {
						g.authorize(clientHash)
					}
					return next(c)
				}
			}
		}

		g.stats.AddWrongLogin()
		if g.opts.BanClients {
			g.recordFailure(clientIP)
		}
		c.Response().Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}
}

// ClientHash fingerprints a client as UUIDv5 over user agent and IP.
func ClientHash(userAgent, ip string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(userAgent+ip)).String()
}

func basicCredentials(r *http.Request) (string, string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[6:])
	if err != nil {
		return "", "", false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	return user, pass, ok
}

func remoteIP(c echo.Context) string {
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		return c.Request().RemoteAddr
	}
	return host
}

func (g *Guard) bannedOut(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.banned[ip] >= g.opts.BanThreshold
}

func (g *Guard) recordFailure(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.banned[ip]++
}

func (g *Guard) isAuthorized(hash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.authorized[hash]
	return ok
}

func (g *Guard) authorize(hash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorized[hash] = struct{}{}
}

func (g *Guard) rememberClient(hash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[hash] = struct{}{}
}
