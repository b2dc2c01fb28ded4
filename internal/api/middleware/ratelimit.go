package middleware

import (
	"cmp"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	maxPartners                int     = 100
	defaultGlobalRPS           int     = 100
	defaultPartnerRPS          int     = 50
	defaultUnAuthRPS           int     = 10
	thresholdMultiplier        float64 = 0.8
	thresholdPercentage        int     = 80
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

type (
	// RateLimiter decides whether a request may proceed. partnerID is empty for unauthenticated
	// requests.
	RateLimiter interface {
		Allow(partnerID string) bool
	}

	// InMemoryRateLimiter holds token buckets for three tiers: every request, each authenticated
	// partner, and all unauthenticated requests together. A request must pass the global bucket
	// and then its own tier. Partner buckets idle past the idle timeout are evicted.
	InMemoryRateLimiter struct {
		global          *rate.Limiter
		unauthenticated *rate.Limiter

		mu         sync.RWMutex
		perPartner map[string]*partnerBucket

		partnerLimit rate.Limit
		partnerBurst int
		idleTimeout  time.Duration
		maxPartners  int

		ticker    *time.Ticker
		done      chan struct{}
		closeOnce sync.Once
	}

	partnerBucket struct {
		limiter  *rate.Limiter
		lastSeen atomic.Int64 // unix nanoseconds
	}
)

// NewInMemoryRateLimiter builds the limiter from config and starts the eviction loop. Call Close
// to stop it.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global: rate.NewLimiter(rate.Limit(config.GlobalRPS), burstFor(config.GlobalRPS, config.GlobalBurst)),
		unauthenticated: rate.NewLimiter(
			rate.Limit(config.UnAuthRPS), burstFor(config.UnAuthRPS, config.UnAuthBurst),
		),
		perPartner:   make(map[string]*partnerBucket),
		partnerLimit: rate.Limit(config.PartnerRPS),
		partnerBurst: burstFor(config.PartnerRPS, config.PartnerBurst),
		idleTimeout:  cmp.Or(config.IdleTimeout, rateLimiterIdleTimeout),
		maxPartners:  config.MaxPartners,
		ticker:       time.NewTicker(cmp.Or(config.CleanupInterval, rateLimiterCleanupInterval)),
		done:         make(chan struct{}),
	}

	go rl.evictLoop()

	return rl
}

// burstFor is the configured burst, or burstCapacityMultiplier × rps when none is set.
func burstFor(rps, configured int) int {
	if configured > 0 {
		return configured
	}

	return rps * burstCapacityMultiplier
}

// Allow spends one token from the global bucket, then one from the caller's tier.
func (rl *InMemoryRateLimiter) Allow(partnerID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if partnerID == "" {
		return rl.unauthenticated.Allow()
	}

	bucket := rl.bucket(partnerID)
	bucket.lastSeen.Store(time.Now().UnixNano())

	return bucket.limiter.Allow()
}

// bucket returns the partner's bucket, creating it on first use.
func (rl *InMemoryRateLimiter) bucket(partnerID string) *partnerBucket {
	rl.mu.RLock()
	bucket, ok := rl.perPartner[partnerID]
	rl.mu.RUnlock()

	if ok {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, ok = rl.perPartner[partnerID]; ok {
		return bucket
	}

	bucket = &partnerBucket{limiter: rate.NewLimiter(rl.partnerLimit, rl.partnerBurst)}
	rl.perPartner[partnerID] = bucket

	tracked := len(rl.perPartner)
	if rl.maxPartners > 0 && float64(tracked) >= float64(rl.maxPartners)*thresholdMultiplier {
		slog.Warn("Rate limiter is tracking many partners",
			slog.Int("tracked_partners", tracked),
			slog.Int("max_partners", rl.maxPartners),
			slog.Int("threshold_percent", thresholdPercentage),
		)
	}

	return bucket
}

// Close stops the eviction loop. Calling it again is a no-op.
func (rl *InMemoryRateLimiter) Close() error {
	rl.closeOnce.Do(func() {
		rl.ticker.Stop()
		close(rl.done)
	})

	return nil
}

func (rl *InMemoryRateLimiter) evictLoop() {
	for {
		select {
		case <-rl.ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup evicts partner buckets not used within the idle timeout.
func (rl *InMemoryRateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.idleTimeout).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for partnerID, bucket := range rl.perPartner {
		if bucket.lastSeen.Load() < cutoff {
			delete(rl.perPartner, partnerID)
		}
	}
}

func (rl *InMemoryRateLimiter) partnerCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return len(rl.perPartner)
}

// RateLimit answers 429 with a problem document once the caller's bucket is empty. It runs after
// AuthenticatePartner so authenticated requests are charged to their partner.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	const detail = "Too many requests for this partner. Retry later."

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var partnerID string
			if partner, ok := GetPartnerContext(r.Context()); ok {
				partnerID = partner.PartnerID
			}

			if limiter.Allow(partnerID) {
				next.ServeHTTP(w, r)

				return
			}

			correlationID := GetCorrelationID(r.Context())

			if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
				logger.Error("Failed to write rate limit problem",
					slog.String("correlation_id", correlationID),
					slog.String("partner_id", partnerID),
					slog.String("error", err.Error()),
				)

				http.Error(w, detail, http.StatusTooManyRequests)
			}
		})
	}
}
