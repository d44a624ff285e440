package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

// Fixed window counter. The first hit of a window sets its expiry; every hit
// returns the count so far and the milliseconds left in the window.
const rateLimitScript = `
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return {current, redis.call("PTTL", KEYS[1])}
`

// evaler is the part of *redis.Client the limiter needs.
type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type RateLimitOptions struct {
	Limit  int64 // requests per window; 0 disables limiting
	Window time.Duration
	Prefix string
	// Key picks the bucket for a request. An empty result falls back to the
	// client IP.
	Key func(r *http.Request) string
	// FailOpen lets requests through when Redis cannot be reached.
	FailOpen bool
	Logger   *logging.Logger
}

type RateLimiter struct {
	redis evaler
	opts  RateLimitOptions
}

func NewRateLimiter(redis evaler, opts RateLimitOptions) *RateLimiter {
	if opts.Window < time.Second {
		opts.Window = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default
	}
	return &RateLimiter{redis: redis, opts: opts}
}

// PathValueKey keys the limiter on a path wildcard, e.g. the userId of
// POST /users/{userId}/location.
func PathValueKey(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.PathValue(name))
	}
}

func (rl *RateLimiter) key(r *http.Request) string {
	var suffix string
	if rl.opts.Key != nil {
		suffix = rl.opts.Key(r)
	}
	if suffix == "" {
		suffix = GetClientIP(r)
	}
	return rl.opts.Prefix + suffix
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil || rl.opts.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.key(r)
		count, ttl, err := rl.hit(r.Context(), key)
		if err != nil {
			rl.opts.Logger.Error("Rate limit check failed", map[string]interface{}{
				"error":     err.Error(),
				"key":       key,
				"fail_open": rl.opts.FailOpen,
			})
			if rl.opts.FailOpen {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusServiceUnavailable, "Rate limiting temporarily unavailable")
			return
		}

		remaining := rl.opts.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.opts.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > rl.opts.Limit {
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(ttl), 10))
			rl.opts.Logger.Warn("Rate limit exceeded", map[string]interface{}{"key": key, "count": count})
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hit counts one request against key and returns the window count and the
// time until the window resets.
func (rl *RateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	result, err := rl.redis.Eval(ctx, rateLimitScript, []string{key}, rl.opts.Window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %T", result)
	}
	count, ok := pair[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count %T", pair[0])
	}
	pttl, ok := pair[1].(int64)
	if !ok || pttl < 0 {
		// Key without expiry; assume a full window.
		return count, rl.opts.Window, nil
	}
	return count, time.Duration(pttl) * time.Millisecond, nil
}

func retryAfterSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
