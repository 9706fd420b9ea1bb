package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/byerim/brandshield/internal/models"
)

// ErrQuotaExceeded is returned when the daily search budget is spent.
var ErrQuotaExceeded = errors.New("daily search quota exceeded")

const maxResultsPerQuery = 10

// GoogleProvider executes planned queries against the Google Custom
// Search JSON API.
type GoogleProvider struct {
	svc    *customsearch.Service
	cx     string
	quota  *DailyQuota
	num    int64
	logger *slog.Logger
}

// NewGoogleProvider builds a provider. quota may be nil to disable
// budget enforcement.
func NewGoogleProvider(ctx context.Context, apiKey, cx string, resultsPerPage int, quota *DailyQuota) (*GoogleProvider, error) {
	if apiKey == "" || cx == "" {
		return nil, errors.New("search: api key and cx are required")
	}

	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating custom search service: %w", err)
	}

	num := int64(resultsPerPage)
	if num <= 0 || num > maxResultsPerQuery {
		num = maxResultsPerQuery
	}

	return &GoogleProvider{
		svc:    svc,
		cx:     cx,
		quota:  quota,
		num:    num,
		logger: slog.Default().With("component", "search"),
	}, nil
}

// Search runs one planned query and maps the hits to candidate results.
// A rate-limited response (HTTP 429) yields an empty slice rather than
// an error so a scan can continue with the remaining queries.
func (p *GoogleProvider) Search(ctx context.Context, q Query) ([]models.CandidateResult, error) {
	if p.quota != nil {
		ok, err := p.quota.Reserve(ctx)
		if err != nil {
			p.logger.Warn("quota check failed, allowing search", "error", err)
		} else if !ok {
			return nil, ErrQuotaExceeded
		}
	}

	resp, err := p.svc.Cse.List().Context(ctx).Cx(p.cx).Q(q.Text).Num(p.num).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			p.logger.Warn("search API rate limit hit", "brand", q.Brand)
			return nil, nil
		}
		return nil, fmt.Errorf("custom search: %w", err)
	}

	results := make([]models.CandidateResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, models.CandidateResult{
			URL:       item.Link,
			Title:     item.Title,
			Snippet:   item.Snippet,
			Platform:  DetectPlatform(item.Link),
			QueryType: q.Type,
			Brand:     q.Brand,
		})
	}

	return results, nil
}
