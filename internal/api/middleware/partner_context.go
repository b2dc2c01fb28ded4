package middleware

import (
	"context"
	"time"
)

// partnerContextKey is the context key for authenticated partner information.
type partnerContextKey struct{}

// PartnerContext is added to the request context by AuthenticatePartner.
type PartnerContext struct {
	// PartnerID names the configured key that matched
	PartnerID string

	// AuthTime is when authentication succeeded
	AuthTime time.Time
}

// GetPartnerContext extracts partner context from the request context.
// Returns (context, true) if authenticated, (empty, false) if not found.
func GetPartnerContext(ctx context.Context) (PartnerContext, bool) {
	partnerCtx, ok := ctx.Value(partnerContextKey{}).(PartnerContext)

	return partnerCtx, ok
}

// SetPartnerContext returns a new context carrying partnerCtx.
func SetPartnerContext(ctx context.Context, partnerCtx PartnerContext) context.Context {
	return context.WithValue(ctx, partnerContextKey{}, partnerCtx)
}
