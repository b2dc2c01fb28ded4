package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bioprotocol-io/bioprotocol/internal/api/middleware"
	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeProblemJSON = "application/problem+json"
	contentTypeText        = "text/plain"
)

var (
	_ ProtocolReader   = (*projection.Projector)(nil)
	_ ProtocolIngester = (*ingestion.Pipeline)(nil)
)

type (
	// ProtocolReader serves the read side of the API.
	ProtocolReader interface {
		Query(ctx context.Context, msid int64) (*projection.ProtocolData, error)
		Status(ctx context.Context) (*projection.StatusReport, error)
	}

	// ProtocolIngester stores a partner batch.
	ProtocolIngester interface {
		AddResult(ctx context.Context, batch ingestion.Batch) (*ingestion.BatchResult, error)
	}

	// HealthChecker reports whether the storage backend is usable.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}

	// Dependencies are the runtime collaborators of a Server. Protocols and Ingester are
	// required; the rest are optional.
	Dependencies struct {
		Protocols ProtocolReader
		Ingester  ProtocolIngester

		// Health backs /ready. Without it the server always reports ready.
		Health HealthChecker

		// KeyVerifier enables partner authentication on write requests.
		KeyVerifier *middleware.KeyVerifier

		// RateLimiter enables rate limiting.
		RateLimiter middleware.RateLimiter

		// Logger defaults to a JSON logger at the configured level.
		Logger *slog.Logger
	}

	// IngestResponse reports the outcome of a protocol submission.
	IngestResponse struct {
		Msid       int64 `json:"msid"`
		Successful int   `json:"successful"`
		Failed     int   `json:"failed"`
	}

	// Route binds a path pattern to handlers by method.
	Route struct {
		Path     string
		Handlers map[string]http.HandlerFunc
	}
)
