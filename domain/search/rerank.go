package search

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Re-ranking defaults.
const (
	DefaultEntityBoost              = 0.15
	DefaultLexicalWeight            = 0.1
	DefaultDiversificationThreshold = 0.3
	DefaultImplementationBoost      = 0.1
	DefaultLongTextBonus            = 0.05
	DefaultLongTextChars            = 800
)

// DefaultImplementationPattern matches class, struct, interface, function and method declarations.
const DefaultImplementationPattern = `(?m)^\s*(export\s+)?((public|private|protected|static|async|abstract|pub)\s+)*(class|struct|interface|enum|trait|impl|func|function|def|fn)\s+[A-Za-z_]\w*` +
	`|(?m)^\s*type\s+[A-Za-z_]\w*\s+(struct|interface)\b` +
	`|(?m)^\s*func\s*\([^)]*\)\s*[A-Za-z_]\w*\s*\(`

var (
	constantName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	wordToken    = regexp.MustCompile(`[A-Za-z0-9_]+`)
)

// RankConfig holds the re-ranking magnitudes.
type RankConfig struct {
	entityBoost              float64
	lexicalWeight            float64
	diversificationThreshold float64
	implementationBoost      float64
	longTextBonus            float64
	longTextChars            int
	implementation           *regexp.Regexp
}

// DefaultRankConfig returns the default magnitudes.
func DefaultRankConfig() RankConfig {
	return RankConfig{
		entityBoost:              DefaultEntityBoost,
		lexicalWeight:            DefaultLexicalWeight,
		diversificationThreshold: DefaultDiversificationThreshold,
		implementationBoost:      DefaultImplementationBoost,
		longTextBonus:            DefaultLongTextBonus,
		longTextChars:            DefaultLongTextChars,
		implementation:           regexp.MustCompile(DefaultImplementationPattern),
	}
}

// EntityBoost returns the bonus for a query naming the record's entity.
func (c RankConfig) EntityBoost() float64 { return c.entityBoost }

// LexicalWeight returns the multiplier of the token overlap ratio.
func (c RankConfig) LexicalWeight() float64 { return c.lexicalWeight }

// DiversificationThreshold returns the fraction of topK below which implementations are boosted.
func (c RankConfig) DiversificationThreshold() float64 { return c.diversificationThreshold }

// ImplementationBoost returns the bonus for implementation records.
func (c RankConfig) ImplementationBoost() float64 { return c.implementationBoost }

// LongTextBonus returns the extra bonus for long implementation records.
func (c RankConfig) LongTextBonus() float64 { return c.longTextBonus }

// LongTextChars returns the length above which LongTextBonus applies.
func (c RankConfig) LongTextChars() int { return c.longTextChars }

// WithEntityBoost returns a copy with the given entity boost.
func (c RankConfig) WithEntityBoost(v float64) RankConfig {
	c.entityBoost = v
	return c
}

// WithLexicalWeight returns a copy with the given lexical weight.
func (c RankConfig) WithLexicalWeight(v float64) RankConfig {
	c.lexicalWeight = v
	return c
}

// WithDiversificationThreshold returns a copy with the given threshold.
func (c RankConfig) WithDiversificationThreshold(v float64) RankConfig {
	c.diversificationThreshold = v
	return c
}

// WithImplementationBoost returns a copy with the given implementation boost.
func (c RankConfig) WithImplementationBoost(v float64) RankConfig {
	c.implementationBoost = v
	return c
}

// WithLongText returns a copy with the given long-text bonus and length threshold.
func (c RankConfig) WithLongText(bonus float64, chars int) RankConfig {
	c.longTextBonus = bonus
	c.longTextChars = chars
	return c
}

// WithImplementationPattern returns a copy using a different declaration regex.
func (c RankConfig) WithImplementationPattern(pattern string) (RankConfig, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return c, fmt.Errorf("compile implementation pattern: %w", err)
	}
	c.implementation = re
	return c, nil
}

// Ranker applies the heuristic adjustments on top of similarity scores.
type Ranker struct {
	config RankConfig
}

// NewRanker creates a Ranker.
func NewRanker(config RankConfig) Ranker {
	if config.implementation == nil {
		config.implementation = regexp.MustCompile(DefaultImplementationPattern)
	}
	return Ranker{config: config}
}

// Config returns the ranker configuration.
func (r Ranker) Config() RankConfig { return r.config }

// Rank adjusts, clamps and orders items, returning at most topK of them.
// Items must be given in candidate order; equal scores keep that order.
func (r Ranker) Rank(queryText string, topK int, items []Scored) []Scored {
	if topK <= 0 || len(items) == 0 {
		return []Scored{}
	}

	lowerQuery := strings.ToLower(queryText)
	queryTokens := tokenSet(queryText)

	implementation := make([]bool, len(items))
	implCount := 0
	for i, item := range items {
		rec := item.Record()
		if IsConstantLike(rec.EntityName()) {
			continue
		}
		if r.config.implementation.MatchString(rec.SourceText()) {
			implementation[i] = true
			implCount++
		}
	}
	diversify := implCount < int(math.Floor(float64(topK)*r.config.diversificationThreshold))

	ranked := make([]Scored, len(items))
	for i, item := range items {
		rec := item.Record()
		score := item.Score()

		if name := rec.EntityName(); name != "" && strings.Contains(lowerQuery, strings.ToLower(name)) {
			score += r.config.entityBoost
		}

		if len(queryTokens) > 0 {
			score += LexicalOverlap(queryTokens, rec.SourceText()) * r.config.lexicalWeight
		}

		if diversify && implementation[i] {
			score += r.config.implementationBoost
			if len(rec.SourceText()) > r.config.longTextChars {
				score += r.config.longTextBonus
			}
		}

		ranked[i] = item.WithScore(clamp(score))
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score() > ranked[b].Score()
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// IsConstantLike reports whether an entity name looks like a constant or a
// prompt: ALL_CAPS_WITH_UNDERSCORES, or containing "prompt".
func IsConstantLike(name string) bool {
	if name == "" {
		return false
	}
	return constantName.MatchString(name) || strings.Contains(strings.ToLower(name), "prompt")
}

// LexicalOverlap returns the fraction of query tokens present in text.
func LexicalOverlap(queryTokens map[string]struct{}, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := tokenSet(text)
	overlap := 0
	for tok := range queryTokens {
		if _, ok := textTokens[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTokens))
}

// tokenSet lowercases text and returns its distinct word tokens longer than two characters.
func tokenSet(text string) map[string]struct{} {
	words := wordToken.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
