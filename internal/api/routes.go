package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bioprotocol-io/bioprotocol/internal/api/middleware"
	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/metrics"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
)

const healthCheckTimeout = 2 * time.Second

// setupRoutes registers every route. Each route answers 405 with an Allow header for methods it
// does not serve; unknown paths get a 404 problem.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	readOnly := func(handler http.HandlerFunc) map[string]http.HandlerFunc {
		return map[string]http.HandlerFunc{
			http.MethodGet:  handler,
			http.MethodHead: handler,
		}
	}

	routes := []Route{
		{Path: "/ping", Handlers: readOnly(s.handlePing)},     // K8s liveness probe
		{Path: "/ready", Handlers: readOnly(s.handleReady)},   // K8s readiness probe
		{Path: "/status", Handlers: readOnly(s.handleStatus)}, // row count and last update
		{Path: "/metrics", Handlers: readOnly(metrics.Handler().ServeHTTP)},
		{Path: "/article/{msid}", Handlers: map[string]http.HandlerFunc{
			http.MethodGet:  s.handleGetArticle,
			http.MethodHead: s.handleGetArticle,
			http.MethodPost: s.handlePostArticle,
		}},
	}

	for _, route := range routes {
		handler := middleware.Instrument(route.Path, metrics.RecordHTTPRequest)(s.dispatch(route))
		mux.Handle(route.Path, handler)
	}

	mux.HandleFunc("/", s.handleNotFound)
}

// dispatch picks the route handler for the request method.
func (s *Server) dispatch(route Route) http.HandlerFunc {
	allowed := make([]string, 0, len(route.Handlers))
	for method := range route.Handlers {
		allowed = append(allowed, method)
	}

	slices.Sort(allowed)

	return func(w http.ResponseWriter, r *http.Request) {
		handler, ok := route.Handlers[r.Method]
		if !ok {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			WriteErrorResponse(w, r, s.logger, MethodNotAllowed(allowed))

			return
		}

		handler(w, r)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logWriteError(r, "ping", err)
	}
}

// handleReady answers 200 "ready" while the storage backend passes its health check, 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Error("Storage health check failed",
				slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
				slog.String("error", err.Error()),
			)

			WriteErrorResponse(w, r, s.logger, ServiceUnavailable("storage unavailable"))

			return
		}
	}

	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logWriteError(r, "ready", err)
	}
}

// handleStatus reports the stored row count and the most recent update.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.protocols.Status(r.Context())
	if err != nil {
		s.logger.Error("Failed to compute status",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("unexpected error"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, contentTypeJSON, status)
}

// handleGetArticle returns the protocols of an article, 404 when nothing is stored for it.
func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	msid, ok := s.articleID(w, r)
	if !ok {
		return
	}

	data, err := s.protocols.Query(r.Context(), msid)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("Not found"))

			return
		}

		s.logger.Error("Failed to query article protocols",
			slog.Int64("msid", msid),
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Server error"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, s.responseContentType(r), data)
}

// handlePostArticle ingests a JSON list of partner rows for an article.
//
// Answers 200 when every row was stored and 400 when any row failed, with the counts in both
// cases. A bad content type, unparseable JSON or an empty list is a 400 without ingestion.
func (s *Server) handlePostArticle(w http.ResponseWriter, r *http.Request) {
	msid, ok := s.articleID(w, r)
	if !ok {
		return
	}

	if !s.acceptedContentType(r.Header.Get("Content-Type")) {
		requested := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
		WriteErrorResponse(w, r, s.logger, BadRequest("unhandled content-type header: "+requested))

		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w, r, s.logger, PayloadTooLarge(
				fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
			))

			return
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("failed to read request body"))

		return
	}

	items, err := ingestion.DecodeItems(body)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("failed to parse given JSON"))

		return
	}

	if len(items) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("empty data"))

		return
	}

	result, err := s.ingester.AddResult(r.Context(), ingestion.Batch{Msid: msid, Items: items})
	if err != nil {
		s.logger.Error("Failed to ingest protocols",
			slog.Int64("msid", msid),
			slog.Int("items", len(items)),
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Server error"))

		return
	}

	statusCode := http.StatusOK
	if len(result.Failed) > 0 {
		statusCode = http.StatusBadRequest
	}

	s.writeJSON(w, r, statusCode, s.responseContentType(r), IngestResponse{
		Msid:       msid,
		Successful: len(result.Successful),
		Failed:     len(result.Failed),
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// articleID parses the {msid} path segment. Anything but a plain non-negative integer is a 404,
// as no such article route exists.
func (s *Server) articleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("msid")

	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		s.handleNotFound(w, r)

		return 0, false
	}

	msid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.handleNotFound(w, r)

		return 0, false
	}

	return msid, true
}

// responseContentType is the eLife content type when the Accept header mentions it,
// application/json otherwise.
func (s *Server) responseContentType(r *http.Request) string {
	accept := strings.ToLower(strings.TrimSpace(r.Header.Get("Accept")))
	elife := strings.ToLower(strings.TrimSpace(s.config.ElifeContentType))

	if accept != "" && strings.Contains(accept, elife) {
		return s.config.ElifeContentType
	}

	return contentTypeJSON
}

// acceptedContentType checks a request Content-Type, case-insensitively, for JSON or the eLife type.
func (s *Server) acceptedContentType(contentType string) bool {
	requested := strings.ToLower(strings.TrimSpace(contentType))
	elife := strings.ToLower(strings.TrimSpace(s.config.ElifeContentType))

	return strings.Contains(requested, contentTypeJSON) || strings.Contains(requested, elife)
}

// writeJSON marshals before writing any header so an encoding failure can still become a 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, contentType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logWriteError(r, r.URL.Path, err)
	}
}

func (s *Server) logWriteError(r *http.Request, endpoint string, err error) {
	s.logger.Error("Failed to write response",
		slog.String("endpoint", endpoint),
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("error", err.Error()),
	)
}
