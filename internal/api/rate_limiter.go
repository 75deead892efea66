package api

import (
	"net/http"
	"sync"

	"github.com/token-ledger/internal/types"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-user rate limiting for API requests. The limit tier
// follows the caller's plan: free, paid or unlimited.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	freeTierLimit      rate.Limit
	paidTierLimit      rate.Limit
	unlimitedTierLimit rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(freeTierRPS, paidTierRPS, unlimitedTierRPS int) *RateLimiter {
	return &RateLimiter{
		limiters:           make(map[string]*rate.Limiter),
		freeTierLimit:      rate.Limit(freeTierRPS),
		paidTierLimit:      rate.Limit(paidTierRPS),
		unlimitedTierLimit: rate.Limit(unlimitedTierRPS),
		burstSize:          10,
	}
}

// limitFor maps a plan type onto its request rate
func (rl *RateLimiter) limitFor(plan types.PlanType) rate.Limit {
	switch plan {
	case types.PlanUnlimited:
		return rl.unlimitedTierLimit
	case types.PlanFree, "":
		return rl.freeTierLimit
	default:
		return rl.paidTierLimit
	}
}

// getLimiter returns the rate limiter for a specific user and plan
func (rl *RateLimiter) getLimiter(userID string, plan types.PlanType) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[userID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[userID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limitFor(plan), rl.burstSize)
	rl.limiters[userID] = limiter

	return limiter
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				// No user ID - key the limiter by client address instead
				userID = r.RemoteAddr
			}

			plan := types.PlanType(r.Header.Get("X-User-Plan"))

			limiter := rl.getLimiter(userID, plan)
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.", map[string]interface{}{
					"limit": limiter.Limit(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
