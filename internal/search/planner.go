package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/byerim/brandshield/internal/models"
)

// Query is one planned search for a brand. Text is the literal query
// string handed to the provider; Type is the hint attached to every
// result the query produces.
type Query struct {
	Text  string
	Type  models.ThreatType
	Brand string
}

const maxPlannedProducts = 3

// BuildQueries plans the search queries for one brand. The plan covers
// name impersonation, handle variations, counterfeit product listings,
// scam mentions and keyword sweeps, each carrying exclusions for the
// brand's own properties.
func BuildQueries(brand *models.BrandProfile) []Query {
	var queries []Query

	displayName := brand.DisplayName
	if displayName == "" {
		displayName = brand.Key
	}

	var exclusions strings.Builder
	for _, verified := range brand.VerifiedURLs {
		if u, err := url.Parse(verified); err == nil && u.Hostname() != "" {
			fmt.Fprintf(&exclusions, " -site:%s", u.Hostname())
		}
	}
	for _, h := range sortedHandles(brand.PlatformHandles) {
		switch h.platform {
		case "instagram":
			fmt.Fprintf(&exclusions, " -site:instagram.com/%s", h.handle)
		case "twitter":
			fmt.Fprintf(&exclusions, " -site:twitter.com/%s -site:x.com/%s", h.handle, h.handle)
		case "youtube":
			fmt.Fprintf(&exclusions, " -site:youtube.com/%s", h.handle)
		}
	}
	excl := exclusions.String()

	queries = append(queries, Query{
		Text:  fmt.Sprintf("%q%s", displayName, excl),
		Type:  models.ThreatImpersonation,
		Brand: brand.Key,
	})

	for _, h := range sortedHandles(brand.PlatformHandles) {
		queries = append(queries, Query{
			Text:  fmt.Sprintf("%q (%s OR profile OR account) -site:%s.com/%s", h.handle, h.platform, h.platform, h.handle),
			Type:  models.ThreatImpersonation,
			Brand: brand.Key,
		})
	}

	products := brand.ProductNames
	if len(products) > maxPlannedProducts {
		products = products[:maxPlannedProducts]
	}
	for _, product := range products {
		queries = append(queries, Query{
			Text:  fmt.Sprintf("%q (buy OR shop OR order OR price)%s", product, excl),
			Type:  models.ThreatCounterfeit,
			Brand: brand.Key,
		})
	}

	queries = append(queries, Query{
		Text:  fmt.Sprintf("%q OR %q (fake OR scam OR unofficial OR replica)", displayName, brand.Key),
		Type:  models.ThreatContentTheft,
		Brand: brand.Key,
	})

	if len(brand.Keywords) > 0 {
		keywords := brand.Keywords
		if len(keywords) > maxPlannedProducts {
			keywords = keywords[:maxPlannedProducts]
		}
		quoted := make([]string, len(keywords))
		for i, k := range keywords {
			quoted[i] = fmt.Sprintf("%q", k)
		}
		queries = append(queries, Query{
			Text:  fmt.Sprintf("(%s) (impersonat* OR fake OR counterfeit)%s", strings.Join(quoted, " OR "), excl),
			Type:  models.ThreatContentTheft,
			Brand: brand.Key,
		})
	}

	return queries
}

type handlePair struct {
	platform string
	handle   string
}

// sortedHandles gives map iteration a stable order so planned queries
// and their exclusion clauses are deterministic across runs.
func sortedHandles(handles map[string]string) []handlePair {
	pairs := make([]handlePair, 0, len(handles))
	for platform, handle := range handles {
		pairs = append(pairs, handlePair{platform: platform, handle: handle})
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].platform < pairs[j-1].platform; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	return pairs
}
