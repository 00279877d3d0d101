package finding

import (
	"fmt"
	"sort"
)

const titleKeyLen = 30

func dedupeKey(f Finding) string {
	title := f.Title
	if len(title) > titleKeyLen {
		title = title[:titleKeyLen]
	}
	return fmt.Sprintf("%s:%d:%s", f.Location.FilePath, f.Location.StartLine, title)
}

// Merge deduplicates findings accumulated across phases and orders them for
// reporting. Two findings collide when they share file path, start line and
// the first 30 characters of the title; the higher-confidence one survives.
// The result is sorted by severity rank, then confidence descending, with
// lexicographic tie-breakers so the order is deterministic for a given set.
func Merge(findings []Finding) []Finding {
	byKey := make(map[string]Finding, len(findings))
	order := make([]string, 0, len(findings))
	for _, f := range findings {
		key := dedupeKey(f)
		existing, seen := byKey[key]
		if !seen {
			byKey[key] = f
			order = append(order, key)
			continue
		}
		if f.Confidence > existing.Confidence {
			byKey[key] = f
		}
	}

	merged := make([]Finding, 0, len(byKey))
	for _, key := range order {
		merged = append(merged, byKey[key])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Location.FilePath != b.Location.FilePath {
			return a.Location.FilePath < b.Location.FilePath
		}
		if a.Location.StartLine != b.Location.StartLine {
			return a.Location.StartLine < b.Location.StartLine
		}
		return a.Title < b.Title
	})
	return merged
}
