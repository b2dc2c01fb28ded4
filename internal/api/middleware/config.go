package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/bioprotocol-io/bioprotocol/internal/config"
)

// ErrInvalidRateLimit is returned for a non-positive rate or a negative burst.
var ErrInvalidRateLimit = errors.New("invalid rate limit")

// Config holds rate limiter configuration.
//
// Rates are requests per second for three tiers: global, per partner and unauthenticated.
// Burst fields of 0 are computed as 2 × rate.
type Config struct {
	Enabled bool

	GlobalRPS  int
	PartnerRPS int
	UnAuthRPS  int

	GlobalBurst  int
	PartnerBurst int
	UnAuthBurst  int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxPartners     int
}

// LoadConfig loads the rate limiter configuration from BIOPROTOCOL_* variables.
func LoadConfig() *Config {
	return &Config{
		Enabled: config.GetEnvBool("BIOPROTOCOL_RATE_LIMIT_ENABLED", true),

		GlobalRPS:  config.GetEnvInt("BIOPROTOCOL_GLOBAL_RPS", defaultGlobalRPS),
		PartnerRPS: config.GetEnvInt("BIOPROTOCOL_PARTNER_RPS", defaultPartnerRPS),
		UnAuthRPS:  config.GetEnvInt("BIOPROTOCOL_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst:  config.GetEnvInt("BIOPROTOCOL_GLOBAL_BURST", 0),
		PartnerBurst: config.GetEnvInt("BIOPROTOCOL_PARTNER_BURST", 0),
		UnAuthBurst:  config.GetEnvInt("BIOPROTOCOL_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"BIOPROTOCOL_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("BIOPROTOCOL_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxPartners: config.GetEnvInt("BIOPROTOCOL_RATE_LIMIT_MAX_PARTNERS", maxPartners),
	}
}

// Validate checks the configuration. A disabled limiter is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	rates := map[string]int{
		"global":          c.GlobalRPS,
		"partner":         c.PartnerRPS,
		"unauthenticated": c.UnAuthRPS,
	}

	for tier, rps := range rates {
		if rps <= 0 {
			return fmt.Errorf("%w: %s rate must be positive, got %d", ErrInvalidRateLimit, tier, rps)
		}
	}

	if c.GlobalBurst < 0 || c.PartnerBurst < 0 || c.UnAuthBurst < 0 {
		return fmt.Errorf("%w: burst cannot be negative", ErrInvalidRateLimit)
	}

	return nil
}
