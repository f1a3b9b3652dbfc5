package rpc

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const jwtClockSkew = 2 * time.Minute

// Authenticator validates HMAC signed bearer tokens. With no secret
// configured every request is accepted.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret))}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

func (a *Authenticator) Authenticate(r *http.Request) error {
	if !a.Enabled() {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return errors.New("missing Authorization header")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return errors.New("Authorization header must use Bearer scheme")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return errors.New("missing bearer token")
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(jwtClockSkew), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return errors.New("invalid RPC credentials")
	}
	return nil
}

// IssueToken signs a bearer token for subject valid for ttl. The CLI uses it
// to authenticate against nodes sharing the secret.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("jwt secret required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RateLimiter keeps one token bucket per client. A non-positive rate
// disables limiting.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdle = 10 * time.Minute

func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     burst,
		visitors:  make(map[string]*visitor),
		now:       time.Now,
	}
}

func (l *RateLimiter) Allow(client string) bool {
	if l.perSecond <= 0 {
		return true
	}
	if client == "" {
		client = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(l.visitors, id)
		}
	}
	v, ok := l.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[client] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
