package retrieval

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Composite score weights. Similarity dominates, lexical term overlap
// breaks semantic ties, an exact query match outranks everything but a
// large similarity gap, and document chunks get a small source bonus.
const (
	similarityWeight = 100.0
	termMatchWeight  = 10.0
	exactMatchBonus  = 100.0
	documentBonus    = 20.0

	minTermLength = 3
)

// Reranker merges candidates from both sources and orders them by a
// blended semantic and lexical score.
type Reranker struct {
	cfg    Config
	logger zerolog.Logger
}

func NewReranker(cfg Config, logger zerolog.Logger) *Reranker {
	return &Reranker{
		cfg:    cfg,
		logger: logger.With().Str("component", "reranker").Logger(),
	}
}

// Rank scores every candidate against the query text and returns them
// in descending score order. The sort is stable: candidates with equal
// scores keep their incoming order.
func (r *Reranker) Rank(query string, candidates []Candidate) []ScoredCandidate {
	terms := queryTerms(query)
	fullQuery := strings.ToLower(strings.TrimSpace(query))

	ranked := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = ScoredCandidate{
			Candidate: c,
			Score:     compositeScore(c, terms, fullQuery),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Select ranks the merged candidate pool and picks the winners for
// each source independently: up to DocTopK document chunks at or above
// the document threshold, then up to LongTopK conversation records at
// or above the long-term threshold. Thresholds are rechecked here so a
// high lexical score can never resurrect a weak semantic match.
func (r *Reranker) Select(query string, docs, convs []Candidate) []ScoredCandidate {
	merged := make([]Candidate, 0, len(docs)+len(convs))
	merged = append(merged, docs...)
	merged = append(merged, convs...)
	if len(merged) == 0 {
		return nil
	}

	ranked := r.Rank(query, merged)

	selected := make([]ScoredCandidate, 0, r.cfg.DocTopK+r.cfg.LongTopK)
	picked := 0
	for _, sc := range ranked {
		if sc.SourceType != SourceDocument || picked >= r.cfg.DocTopK {
			continue
		}
		if sc.Similarity < r.cfg.DocThreshold {
			continue
		}
		selected = append(selected, sc)
		picked++
	}

	picked = 0
	for _, sc := range ranked {
		if sc.SourceType != SourceConversation || picked >= r.cfg.LongTopK {
			continue
		}
		if sc.Similarity < r.cfg.LongThreshold {
			continue
		}
		selected = append(selected, sc)
		picked++
	}

	r.logger.Debug().
		Int("candidates", len(merged)).
		Int("selected", len(selected)).
		Msg("Reranked retrieval candidates")
	return selected
}

func compositeScore(c Candidate, terms []string, fullQuery string) float64 {
	score := c.Similarity * similarityWeight

	content := strings.ToLower(c.Content)
	for _, term := range terms {
		if strings.Contains(content, term) {
			score += termMatchWeight
		}
	}

	if fullQuery != "" && strings.Contains(content, fullQuery) {
		score += exactMatchBonus
	}

	if c.SourceType == SourceDocument {
		score += documentBonus
	}

	return score
}

// queryTerms lowercases the query and returns its distinct words of at
// least minTermLength characters, with leading and trailing punctuation
// stripped. The length filter applies to the raw word, so a short word
// that only clears the bar with its punctuation still counts.
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) < minTermLength {
			continue
		}
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
	}
	return terms
}
