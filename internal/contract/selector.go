package contract

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultSelectionLimit bounds the working set handed to expensive phases.
const DefaultSelectionLimit = 8

var (
	transferPatternRe = regexp.MustCompile(`\.(transfer|transferFrom|safeTransfer|safeTransferFrom|send)\s*\(`)
	mintBurnPatternRe = regexp.MustCompile(`(?i)\b_?(mint|burn)\w*\s*\(`)
	externalCallRe    = regexp.MustCompile(`\.call\s*[({]|delegatecall`)
)

// Score rates one contract's relevance for deep analysis. Additive and
// deterministic: identical inputs always produce the identical score.
func Score(c *Contract, coreContracts, criticalOperations []string) float64 {
	lowerPath := strings.ToLower(c.FilePath)
	lowerSource := strings.ToLower(c.SourceCode)

	var score float64
	for _, core := range coreContracts {
		needle := strings.ToLower(strings.TrimSpace(core))
		if needle == "" {
			continue
		}
		if strings.Contains(lowerPath, needle) || strings.Contains(lowerSource, needle) {
			score += 10
		}
	}
	for _, op := range criticalOperations {
		needle := strings.ToLower(strings.TrimSpace(op))
		if needle == "" {
			continue
		}
		if strings.Contains(lowerSource, needle) {
			score += 5
		}
	}
	if transferPatternRe.MatchString(c.SourceCode) {
		score += 3
	}
	if mintBurnPatternRe.MatchString(c.SourceCode) {
		score += 3
	}
	if externalCallRe.MatchString(c.SourceCode) {
		score += 2
	}
	score += math.Min(float64(c.LineCount())/100, 5)

	if strings.Contains(lowerPath, "test") || strings.Contains(lowerPath, "mock") ||
		strings.Contains(lowerSource, "test") || strings.Contains(lowerSource, "mock") {
		score -= 20
	}
	return score
}

// SelectTop ranks contracts by Score and returns at most limit of them,
// highest first. The sort is stable so repeated runs over the same input
// produce the same selection.
func SelectTop(contracts []Contract, coreContracts, criticalOperations []string, limit int) []Contract {
	if limit <= 0 {
		limit = DefaultSelectionLimit
	}
	type scored struct {
		contract Contract
		score    float64
	}
	ranked := make([]scored, 0, len(contracts))
	for _, c := range contracts {
		c := c
		ranked = append(ranked, scored{contract: c, score: Score(&c, coreContracts, criticalOperations)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Contract, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.contract)
	}
	return out
}
