package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix starts every generated partner API key.
	APIKeyPrefix = "bioprotocol_ak_"

	randomBytesSize = 32
	maskPrefixLen   = len(APIKeyPrefix) + 4
	maskSuffixLen   = 4
)

// GenerateAPIKey creates a new random partner API key: the prefix followed by 64 hex characters.
func GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, randomBytesSize)

	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return APIKeyPrefix + hex.EncodeToString(randomBytes), nil
}

// MaskKey masks an API key for logging. Generated keys keep a short prefix and suffix visible,
// anything else is masked completely.
func MaskKey(key string) string {
	keyLen := len(key)

	if strings.HasPrefix(key, APIKeyPrefix) && keyLen > maskPrefixLen+maskSuffixLen {
		return key[:maskPrefixLen] + strings.Repeat("*", keyLen-maskPrefixLen-maskSuffixLen) + key[keyLen-maskSuffixLen:]
	}

	return strings.Repeat("*", keyLen)
}
