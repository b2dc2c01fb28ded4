// Package middleware provides HTTP middleware components for the bioprotocol API.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const problemTypeBase = "https://bioprotocol.io/problems/"

type (
	// AuthError represents an authentication error with a specific type.
	AuthError struct {
		Type    error
		Message string
	}

	// PartnerKey is a named bcrypt hash of a partner API key.
	PartnerKey struct {
		Name string
		Hash string
	}

	// KeyVerifier checks API keys against the configured partner key hashes.
	KeyVerifier struct {
		keys []PartnerKey
	}
)

// Authentication error types for granular error handling.
var (
	// ErrMissingAPIKey is returned when no API key is provided in headers.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned when the key matches no configured hash.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrNoPartnerKeys is returned when a verifier is built without any key hash.
	ErrNoPartnerKeys = errors.New("at least one partner key hash is required")

	// ErrMalformedKeyHash is returned for a configured entry that is not a bcrypt hash.
	ErrMalformedKeyHash = errors.New("malformed partner key hash")
)

// ParsePartnerKeys parses configured key entries. An entry is either "name:hash" or a bare bcrypt
// hash, which is named after its position ("partner-1", "partner-2", …).
func ParsePartnerKeys(entries []string) ([]PartnerKey, error) {
	keys := make([]PartnerKey, 0, len(entries))

	for i, entry := range entries {
		name := fmt.Sprintf("partner-%d", i+1)
		hash := strings.TrimSpace(entry)

		if prefix, rest, found := strings.Cut(hash, ":"); found {
			name = strings.TrimSpace(prefix)
			hash = strings.TrimSpace(rest)
		}

		if name == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty name", ErrMalformedKeyHash, i+1)
		}

		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): %w", ErrMalformedKeyHash, i+1, name, err)
		}

		keys = append(keys, PartnerKey{Name: name, Hash: hash})
	}

	return keys, nil
}

// NewKeyVerifier creates a verifier for the given partner keys.
func NewKeyVerifier(keys []PartnerKey) (*KeyVerifier, error) {
	if len(keys) == 0 {
		return nil, ErrNoPartnerKeys
	}

	return &KeyVerifier{keys: append([]PartnerKey(nil), keys...)}, nil
}

// Verify returns the name of the partner whose hash matches apiKey.
// Every hash is compared, so the time taken does not reveal which entry matched.
func (v *KeyVerifier) Verify(apiKey string) (string, bool) {
	matched := ""

	for _, key := range v.keys {
		if CompareAPIKeyHash(key.Hash, apiKey) && matched == "" {
			matched = key.Name
		}
	}

	return matched, matched != ""
}

// extractAPIKey extracts the API key from request headers.
// It checks the X-Api-Key header first (primary), then falls back to
// Authorization: Bearer header (secondary).
//
// Returns (key, true) if found and valid, ("", false) otherwise.
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return validateAPIKey(apiKey)
	}

	authHeader := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(authHeader, "Bearer "); found {
		return validateAPIKey(token)
	}

	return "", false
}

// validateAPIKey rejects keys containing newlines (header injection) and keys that are empty
// after trimming.
func validateAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// Error implements the error interface for AuthError.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the wrapped error type, enabling standard errors.Is() and errors.As() behavior.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// isReadOnly reports whether the method only reads. Read-only requests are never authenticated:
// the partner key guards protocol submissions.
func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// AuthenticatePartner creates a middleware that requires a valid partner API key on every
// request that writes, and enriches the request context with the partner's name.
//
// The key is read from X-Api-Key (primary) or Authorization: Bearer (fallback). Failures get an
// RFC 7807 401 response.
func AuthenticatePartner(verifier *KeyVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isReadOnly(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrMissingAPIKey,
					Message: "Missing API key",
				})

				return
			}

			partner, ok := verifier.Verify(apiKey)
			if !ok {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrInvalidAPIKey,
					Message: "Invalid or missing API key",
				})

				return
			}

			partnerCtx := PartnerContext{
				PartnerID: partner,
				AuthTime:  time.Now(),
			}
			ctx := SetPartnerContext(r.Context(), partnerCtx)

			logger.Info("API key authenticated",
				slog.String("partner_id", partner),
				slog.String("key", MaskKey(apiKey)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes an RFC 7807 401 response and logs the failure.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	detail := err.Error()
	if err := writeRFC7807Error(w, r, http.StatusUnauthorized, detail, correlationID); err != nil {
		logger.Error("failed to write response with RFC 7807 error format",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("detail", detail),
			slog.Any("error", err),
		)

		http.Error(w, detail, http.StatusUnauthorized)
	}
}

// ProblemType returns the RFC 7807 type URI of a status code.
func ProblemType(statusCode int) string {
	return fmt.Sprintf("%s%d", problemTypeBase, statusCode)
}

// writeRFC7807Error writes an RFC 7807 compliant error response without importing the api package.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	detail,
	correlationID string,
) error {
	problem := map[string]interface{}{
		"type":          ProblemType(statusCode),
		"title":         http.StatusText(statusCode),
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
