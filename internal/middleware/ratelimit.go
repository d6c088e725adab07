package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coah80/squish/internal/config"
)

var (
	rateLimitStore = make(map[string][]time.Time)
	rateLimitMu    sync.Mutex
)

// RateLimit applies a sliding-window request limit per client IP. It expects
// chi's RealIP middleware to have rewritten RemoteAddr. A non-positive
// RATE_LIMIT_MAX disables limiting.
func RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.RateLimitMax <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		allowed, remaining, resetIn := checkRateLimit(ip, time.Now())

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RateLimitMax))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetIn))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "Too many requests. Please slow down.",
				"resetIn": resetIn,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const maxRateLimitEntries = 100000

func checkRateLimit(ip string, now time.Time) (allowed bool, remaining int, resetIn int) {
	rateLimitMu.Lock()
	defer rateLimitMu.Unlock()

	windowStart := now.Add(-config.RateLimitWindow)

	requests := rateLimitStore[ip]
	filtered := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= config.RateLimitMax {
		resetSec := int(filtered[0].Add(config.RateLimitWindow).Sub(now).Seconds()) + 1
		rateLimitStore[ip] = filtered
		return false, 0, resetSec
	}

	if _, known := rateLimitStore[ip]; !known && len(rateLimitStore) >= maxRateLimitEntries {
		return false, 0, 60
	}

	filtered = append(filtered, now)
	rateLimitStore[ip] = filtered
	return true, config.RateLimitMax - len(filtered), 0
}

func pruneRateLimits(now time.Time) {
	rateLimitMu.Lock()
	defer rateLimitMu.Unlock()

	windowStart := now.Add(-config.RateLimitWindow)
	for ip, requests := range rateLimitStore {
		filtered := requests[:0]
		for _, t := range requests {
			if t.After(windowStart) {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) == 0 {
			delete(rateLimitStore, ip)
		} else {
			rateLimitStore[ip] = filtered
		}
	}
}

// StartRateLimitCleanup drops idle IPs every minute until ctx is done.
func StartRateLimitCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				pruneRateLimits(now)
			}
		}
	}()
}
