package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// TargetPartner labels partner requests in metrics and logs.
const TargetPartner = "partner"

// Partner talks to the protocol partner's article API.
type Partner struct {
	baseURL   string
	requester *requester
}

// NewPartner creates a partner client. The configuration must be valid.
func NewPartner(cfg *Config, opts ...Option) *Partner {
	return &Partner{
		baseURL:   strings.TrimRight(cfg.PartnerBaseURL, "/"),
		requester: newRequester(TargetPartner, cfg, opts...),
	}
}

// ArticleURL returns the partner URL of an article. The partner expects a five digit, zero padded id.
func (p *Partner) ArticleURL(msid int64) string {
	return fmt.Sprintf("%s/elife%05d", p.baseURL, msid)
}

// SendProtocols posts payload, marshalled as JSON, to the partner.
func (p *Partner) SendProtocols(ctx context.Context, msid int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode protocols of %d: %w", msid, err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	if _, err := p.requester.do(ctx, http.MethodPost, p.ArticleURL(msid)+"?action=sendArticle", body, header); err != nil {
		return fmt.Errorf("send protocols of %d: %w", msid, err)
	}

	return nil
}

// FetchProtocols returns the partner's raw protocol rows of msid.
func (p *Partner) FetchProtocols(ctx context.Context, msid int64) ([]byte, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	body, err := p.requester.do(ctx, http.MethodGet, p.ArticleURL(msid), nil, header)
	if err != nil {
		return nil, fmt.Errorf("fetch protocols of %d: %w", msid, err)
	}

	return body, nil
}
