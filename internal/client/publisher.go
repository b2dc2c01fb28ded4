package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// TargetPublisher labels publisher requests in metrics and logs.
const TargetPublisher = "publisher"

// Publisher fetches article-json from the publisher's API gateway.
type Publisher struct {
	baseURL   string
	requester *requester
}

// NewPublisher creates a publisher client. The configuration must be valid.
func NewPublisher(cfg *Config, opts ...Option) *Publisher {
	return &Publisher{
		baseURL:   strings.TrimRight(cfg.GatewayURL, "/"),
		requester: newRequester(TargetPublisher, cfg, opts...),
	}
}

// ArticleURL returns the gateway URL of an article.
func (p *Publisher) ArticleURL(msid int64) string {
	return p.baseURL + "/articles/" + strconv.FormatInt(msid, 10)
}

// FetchArticle returns the raw article-json of msid.
func (p *Publisher) FetchArticle(ctx context.Context, msid int64) ([]byte, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	body, err := p.requester.do(ctx, http.MethodGet, p.ArticleURL(msid), nil, header)
	if err != nil {
		return nil, fmt.Errorf("fetch article %d: %w", msid, err)
	}

	return body, nil
}
