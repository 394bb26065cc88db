package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/server/handlers"
)

// RateLimiter is a fixed-window limiter keyed by client address.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rule    config.RateLimitRule
	now     func() time.Time
	cleanup *time.Ticker
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped sync.Once
}

type bucket struct {
	tokens      int
	windowStart time.Time
}

func NewRateLimiter(rule config.RateLimitRule) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rule:    rule,
		now:     time.Now,
		cleanup: time.NewTicker(rule.Window * 2),
		stopCh:  make(chan struct{}),
	}

	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		rl.cleanupLoop()
	}()

	return rl
}

// Allow consumes one request for key and reports whether it fits in the
// current window, along with the time until the window resets.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowStart) >= rl.rule.Window {
		b = &bucket{tokens: rl.rule.Max, windowStart: now}
		rl.buckets[key] = b
	}

	reset := rl.rule.Window - now.Sub(b.windowStart)
	if b.tokens == 0 {
		return false, reset
	}

	b.tokens--
	return true, reset
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.mu.Lock()
			now := rl.now()
			for key, b := range rl.buckets {
				if now.Sub(b.windowStart) > rl.rule.Window*2 {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopped.Do(func() {
		close(rl.stopCh)
		rl.cleanup.Stop()
		rl.wg.Wait()
	})
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, reset := rl.Allow(clientKey(r))
		if !ok {
			seconds := int(reset.Round(time.Second).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			handlers.TooManyRequests(w, "Too many job triggers, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
