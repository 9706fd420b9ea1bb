package detector

import (
	"math"
	"strings"

	"github.com/byerim/brandshield/internal/models"
)

// Weights control how much each component score contributes to the final
// confidence. They are not renormalized, so the sum matters.
type Weights struct {
	ProfilePic float64
	Bio        float64
	Username   float64
	Content    float64
	Name       float64
}

func DefaultWeights() Weights {
	return Weights{
		ProfilePic: 0.30,
		Bio:        0.20,
		Username:   0.20,
		Content:    0.20,
		Name:       0.10,
	}
}

// SeverityThresholds are inclusive lower confidence bounds, evaluated
// highest first. Anything below Medium is low.
type SeverityThresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{
		Critical: 0.90,
		High:     0.75,
		Medium:   0.50,
	}
}

// ScoreResult is the verdict for one candidate. Evidence carries the five
// raw component scores independent of the weights applied.
type ScoreResult struct {
	Confidence float64            `json:"confidence"`
	Severity   models.Severity    `json:"severity"`
	ThreatType models.ThreatType  `json:"threat_type"`
	Evidence   map[string]float64 `json:"evidence"`
}

type Detector struct {
	weights    Weights
	thresholds SeverityThresholds
}

func New(weights Weights, thresholds SeverityThresholds) *Detector {
	return &Detector{weights: weights, thresholds: thresholds}
}

func Default() *Detector {
	return New(DefaultWeights(), DefaultSeverityThresholds())
}

// impersonationSuffixes and impersonationPrefixes enumerate the username
// shapes fake accounts reach for. A candidate matching any of them against
// an official handle scores at least 0.85.
var impersonationSuffixes = []string{
	"_official", "official", "_real", "_uk", "uk",
	"_shop", "shop", "_store", "2", "_backup", ".official",
}

var impersonationPrefixes = []string{
	"the_real_", "thereal", "real_", "official.",
}

// UsernameScore measures how closely a candidate username resembles one of
// the brand's official handles. An exact handle match is the real account
// and contributes nothing.
func (d *Detector) UsernameScore(username string, brand *models.BrandProfile) float64 {
	if username == "" {
		return 0.0
	}

	candidate := strings.Trim(strings.ToLower(username), "@")
	brandClean := strings.Trim(strings.ToLower(brand.Key), "@")

	handles := make([]string, 0, len(brand.PlatformHandles)+1)
	for _, h := range brand.PlatformHandles {
		handles = append(handles, h)
	}
	handles = append(handles, brandClean)

	maxScore := 0.0
	for _, handle := range handles {
		h := strings.ToLower(handle)
		if h == "" || candidate == h {
			continue
		}

		if sim := Similarity(candidate, h); sim > maxScore {
			maxScore = sim
		}

		for _, pattern := range usernamePatterns(h) {
			if candidate == pattern || strings.Contains(candidate, pattern) {
				maxScore = math.Max(maxScore, 0.85)
				break
			}
		}

		if strings.Contains(candidate, h) {
			maxScore = math.Max(maxScore, 0.6)
		}
	}

	return math.Min(maxScore, 1.0)
}

func usernamePatterns(handle string) []string {
	patterns := make([]string, 0, len(impersonationSuffixes)+len(impersonationPrefixes))
	for _, suffix := range impersonationSuffixes {
		patterns = append(patterns, handle+suffix)
	}
	for _, prefix := range impersonationPrefixes {
		patterns = append(patterns, prefix+handle)
	}
	return patterns
}

// BioScore compares bio text to the brand's known phrases and keywords.
func (d *Detector) BioScore(bio string, brand *models.BrandProfile) float64 {
	if bio == "" {
		return 0.0
	}

	bioLower := strings.ToLower(bio)
	maxScore := 0.0

	for _, phrase := range brand.BioPhrases {
		if sim := Similarity(phrase, bio); sim > maxScore {
			maxScore = sim
		}
		// A verbatim phrase lift is a strong signal regardless of length.
		if strings.Contains(bioLower, strings.ToLower(phrase)) {
			maxScore = math.Max(maxScore, 0.85)
		}
	}

	if len(brand.Keywords) > 0 {
		hits := 0
		for _, kw := range brand.Keywords {
			if strings.Contains(bioLower, strings.ToLower(kw)) {
				hits++
			}
		}
		frac := math.Min(float64(hits)/float64(len(brand.Keywords)), 1.0)
		maxScore = math.Max(maxScore, frac*0.7)
	}

	return maxScore
}

// NameScore compares a display name to the brand's official name.
func (d *Detector) NameScore(displayName string, brand *models.BrandProfile) float64 {
	if displayName == "" || brand.DisplayName == "" {
		return 0.0
	}

	sim := Similarity(displayName, brand.DisplayName)

	candidate := strings.ToLower(strings.TrimSpace(displayName))
	official := strings.ToLower(strings.TrimSpace(brand.DisplayName))

	if candidate == official {
		return 0.95
	}
	if strings.Contains(candidate, official) {
		return math.Max(sim, 0.8)
	}
	return sim
}

// ContentScore measures keyword and product-name overlap in a snippet.
// Product hits weigh 1.5x a keyword hit.
func (d *Detector) ContentScore(snippet string, brand *models.BrandProfile) float64 {
	if snippet == "" {
		return 0.0
	}

	total := len(brand.Keywords) + len(brand.ProductNames)
	if total == 0 {
		return 0.0
	}

	snippetLower := strings.ToLower(snippet)
	hits := 0.0
	for _, kw := range brand.Keywords {
		if strings.Contains(snippetLower, strings.ToLower(kw)) {
			hits += 1.0
		}
	}
	for _, product := range brand.ProductNames {
		if strings.Contains(snippetLower, strings.ToLower(product)) {
			hits += 1.5
		}
	}

	return math.Min(hits/float64(total), 1.0)
}

// Score produces the overall verdict for one candidate. profile may be nil;
// the snippet and title then stand in for bio and display name.
func (d *Detector) Score(result models.CandidateResult, brand *models.BrandProfile, profile *models.ProfileData) ScoreResult {
	username := ""
	bio := ""
	displayName := ""
	if profile != nil {
		username = profile.Username
		bio = profile.Bio
		displayName = profile.DisplayName
	}
	if bio == "" {
		bio = result.Snippet
	}
	if displayName == "" {
		displayName = result.Title
	}

	usernameScore := d.UsernameScore(username, brand)
	bioScore := d.BioScore(bio, brand)
	nameScore := d.NameScore(displayName, brand)
	contentScore := d.ContentScore(result.Snippet, brand)

	// Profile picture matching needs image analysis which this system does
	// not perform; the component is carried at zero so the evidence shape
	// stays stable.
	picScore := 0.0

	confidence := d.weights.ProfilePic*picScore +
		d.weights.Bio*bioScore +
		d.weights.Username*usernameScore +
		d.weights.Content*contentScore +
		d.weights.Name*nameScore

	if usernameScore > 0.8 {
		confidence = math.Max(confidence, 0.7)
	}
	if nameScore > 0.9 {
		confidence = math.Max(confidence, 0.65)
	}

	confidence = math.Min(round3(confidence), 1.0)
	if confidence < 0 {
		confidence = 0
	}

	return ScoreResult{
		Confidence: confidence,
		Severity:   d.Severity(confidence),
		ThreatType: ClassifyThreatType(result, profile),
		Evidence: map[string]float64{
			"username_match":    round3(usernameScore),
			"bio_similarity":    round3(bioScore),
			"name_match":        round3(nameScore),
			"content_overlap":   round3(contentScore),
			"profile_pic_match": round3(picScore),
		},
	}
}

// Severity buckets a confidence value for triage.
func (d *Detector) Severity(confidence float64) models.Severity {
	switch {
	case confidence >= d.thresholds.Critical:
		return models.SeverityCritical
	case confidence >= d.thresholds.High:
		return models.SeverityHigh
	case confidence >= d.thresholds.Medium:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

var counterfeitSignals = []string{
	"buy", "shop", "order", "price", "sale", "discount",
	"free shipping", "cheap", "replica", "dupe",
}

var impersonationSignals = []string{"profile", "account", "follow", "official"}

var theftSignals = []string{"copy", "stolen", "repost", "credit"}

// ClassifyThreatType derives a threat type from available evidence.
// Counterfeit indicators win over impersonation, which wins over content
// theft; the query's intent is the fallback.
func ClassifyThreatType(result models.CandidateResult, profile *models.ProfileData) models.ThreatType {
	snippet := strings.ToLower(result.Snippet + " " + result.Title)

	for _, s := range counterfeitSignals {
		if strings.Contains(snippet, s) {
			return models.ThreatCounterfeit
		}
	}

	if profile != nil && profile.Username != "" {
		return models.ThreatImpersonation
	}
	if models.IsSocialPlatform(result.Platform) {
		for _, s := range impersonationSignals {
			if strings.Contains(snippet, s) {
				return models.ThreatImpersonation
			}
		}
	}

	for _, s := range theftSignals {
		if strings.Contains(snippet, s) {
			return models.ThreatContentTheft
		}
	}

	if result.QueryType != "" {
		return result.QueryType
	}
	return models.ThreatContentTheft
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
