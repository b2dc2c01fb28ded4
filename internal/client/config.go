// Package client provides the outbound HTTP clients for the article publisher and the protocol partner.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bioprotocol-io/bioprotocol/internal/config"
)

const (
	defaultGatewayURL      = "https://prod--gateway.elifesciences.org"
	defaultPartnerBaseURL  = "https://dev.bio-protocol.org/api"
	defaultTimeout         = 30 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

var (
	// ErrInvalidBaseURL is returned when an endpoint is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidRetryPolicy is returned for a negative retry count or non-positive intervals.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// Config holds the remote endpoints and the retry policy.
type Config struct {
	GatewayURL      string
	PartnerBaseURL  string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// LoadConfig reads the client configuration.
//
// Endpoints come from BIOPROTOCOL_ELIFE_GATEWAY and BIOPROTOCOL_PARTNER_URL, falling back to the
// config file and then to the public defaults.
func LoadConfig() *Config {
	file := config.LoadFileFromEnv()

	return &Config{
		GatewayURL: config.GetEnvStr("BIOPROTOCOL_ELIFE_GATEWAY",
			firstNonEmpty(file.Publisher.GatewayURL, defaultGatewayURL)),
		PartnerBaseURL: config.GetEnvStr("BIOPROTOCOL_PARTNER_URL",
			firstNonEmpty(file.Partner.BaseURL, defaultPartnerBaseURL)),
		Timeout:         config.GetEnvDuration("BIOPROTOCOL_CLIENT_TIMEOUT", defaultTimeout),
		MaxRetries:      config.GetEnvInt("BIOPROTOCOL_CLIENT_MAX_RETRIES", defaultMaxRetries),
		InitialInterval: config.GetEnvDuration("BIOPROTOCOL_CLIENT_RETRY_INTERVAL", defaultInitialInterval),
		MaxInterval:     config.GetEnvDuration("BIOPROTOCOL_CLIENT_RETRY_MAX_INTERVAL", defaultMaxInterval),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for _, endpoint := range []string{c.GatewayURL, c.PartnerBaseURL} {
		parsed, err := url.Parse(endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidBaseURL, endpoint)
		}
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxRetries < 0 || c.InitialInterval <= 0 || c.MaxInterval < c.InitialInterval {
		return ErrInvalidRetryPolicy
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}

	return ""
}
