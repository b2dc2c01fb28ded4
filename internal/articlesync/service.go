// Package articlesync moves protocol data between the publisher and the partner.
//
// Outbound, an updated article is downloaded, its protocol sections extracted and delivered to the
// partner. Inbound, the partner's rows for an article are fetched and ingested again.
package articlesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bioprotocol-io/bioprotocol/internal/document"
	"github.com/bioprotocol-io/bioprotocol/internal/extraction"
	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
)

// statusPOA marks a "publish on acceptance" article, which has no body to extract yet.
const statusPOA = "poa"

// ErrMissingDependency is returned when the service is built without a collaborator.
var ErrMissingDependency = errors.New("articlesync dependency cannot be nil")

type (
	// ArticleSource downloads article-json.
	ArticleSource interface {
		FetchArticle(ctx context.Context, msid int64) ([]byte, error)
	}

	// ProtocolPartner receives extracted protocols and serves its own protocol rows.
	ProtocolPartner interface {
		SendProtocols(ctx context.Context, msid int64, payload any) error
		FetchProtocols(ctx context.Context, msid int64) ([]byte, error)
	}

	// Ingester stores a batch of partner rows.
	Ingester interface {
		AddResult(ctx context.Context, batch ingestion.Batch) (*ingestion.BatchResult, error)
	}

	// Delivery is what was sent to the partner for one article.
	Delivery struct {
		Msid    int64              `json:"msid"`
		Payload extraction.Payload `json:"payload"`
	}

	// Service runs the outbound delivery and the inbound reload.
	Service struct {
		publisher ArticleSource
		partner   ProtocolPartner
		ingester  Ingester
		extractor *extraction.Extractor
		logger    *slog.Logger
	}
)

// NewService wires a Service. A nil logger falls back to slog.Default().
func NewService(
	publisher ArticleSource,
	partner ProtocolPartner,
	ingester Ingester,
	logger *slog.Logger,
) (*Service, error) {
	if publisher == nil || partner == nil || ingester == nil {
		return nil, ErrMissingDependency
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		publisher: publisher,
		partner:   partner,
		ingester:  ingester,
		extractor: extraction.NewExtractor(logger),
		logger:    logger,
	}, nil
}

// DownloadParseDeliver downloads article msid, extracts its protocol sections and sends them to
// the partner.
//
// A nil Delivery with a nil error means nothing was sent: the article is POA or its article-json
// is empty.
func (s *Service) DownloadParseDeliver(ctx context.Context, msid int64) (*Delivery, error) {
	raw, err := s.publisher.FetchArticle(ctx, msid)
	if err != nil {
		return nil, err
	}

	doc, err := document.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("article %d: %w: %w", msid, extraction.ErrInvalidInput, err)
	}

	if IsPOA(doc) {
		s.logger.Info("Skipping POA article", slog.Int64("msid", msid))

		return nil, nil //nolint:nilnil
	}

	refs, ok, err := s.extractor.Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("article %d: %w", msid, err)
	}

	if !ok {
		s.logger.Info("Skipping empty article", slog.Int64("msid", msid))

		return nil, nil //nolint:nilnil
	}

	delivery := &Delivery{Msid: msid, Payload: extraction.PartnerPayload(refs)}

	if err := s.partner.SendProtocols(ctx, msid, delivery.Payload); err != nil {
		return nil, err
	}

	s.logger.Info("Delivered article protocols",
		slog.Int64("msid", msid),
		slog.Int("protocols", len(refs)),
	)

	return delivery, nil
}

// ReloadArticleData fetches the partner's rows for msid and ingests them.
func (s *Service) ReloadArticleData(ctx context.Context, msid int64) (*ingestion.BatchResult, error) {
	raw, err := s.partner.FetchProtocols(ctx, msid)
	if err != nil {
		return nil, err
	}

	items, err := ingestion.DecodePartnerRows(raw)
	if err != nil {
		return nil, fmt.Errorf("article %d: %w", msid, err)
	}

	result, err := s.ingester.AddResult(ctx, ingestion.Batch{Msid: msid, Items: items})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reloaded article protocols",
		slog.Int64("msid", msid),
		slog.Int("successful", len(result.Successful)),
		slog.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// IsPOA reports whether article-json describes a POA article, by its top-level status or the
// status of its snippet.
func IsPOA(doc document.Node) bool {
	root, ok := doc.(*document.Map)
	if !ok || root == nil {
		return false
	}

	if status, ok := root.GetString("status"); ok && status == statusPOA {
		return true
	}

	snippet, ok := root.Get("snippet")
	if !ok {
		return false
	}

	snippetMap, ok := snippet.(*document.Map)
	if !ok {
		return false
	}

	status, ok := snippetMap.GetString("status")

	return ok && status == statusPOA
}
