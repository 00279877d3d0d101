package ingest

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"veridian/internal/contract"
)

type sourceEntry struct {
	Content string `json:"content"`
}

// SplitSourceBundle turns an explorer "SourceCode" payload into contracts.
// Verified sources arrive as plain Solidity, a standard-json-input document
// wrapped in doubled braces, or a bare path-to-content map.
func SplitSourceBundle(name, raw string) []contract.Contract {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	// Etherscan wraps standard-json-input in an extra brace pair.
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	if strings.HasPrefix(trimmed, "{") {
		if contracts := decodeSourcesJSON(trimmed); len(contracts) > 0 {
			return contracts
		}
	}

	fileName := strings.TrimSpace(name)
	if fileName == "" {
		fileName = "Contract"
	}
	return []contract.Contract{contract.ParseSource(fileName+".sol", raw)}
}

func decodeSourcesJSON(doc string) []contract.Contract {
	var standard struct {
		Sources map[string]sourceEntry `json:"sources"`
	}
	if err := json.Unmarshal([]byte(doc), &standard); err == nil && len(standard.Sources) > 0 {
		return contractsFromSources(standard.Sources)
	}

	var bare map[string]sourceEntry
	if err := json.Unmarshal([]byte(doc), &bare); err == nil && len(bare) > 0 {
		return contractsFromSources(bare)
	}
	return nil
}

func contractsFromSources(sources map[string]sourceEntry) []contract.Contract {
	paths := make([]string, 0, len(sources))
	for path, entry := range sources {
		if strings.TrimSpace(entry.Content) != "" {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	out := parseSourcePaths(sources, paths, true)
	if len(out) == 0 {
		// every file looked vendored, keep them rather than return nothing
		out = parseSourcePaths(sources, paths, false)
	}
	return out
}

func parseSourcePaths(sources map[string]sourceEntry, paths []string, dropVendored bool) []contract.Contract {
	out := make([]contract.Contract, 0, len(paths))
	for _, path := range paths {
		if dropVendored && isVendoredPath(path) {
			continue
		}
		out = append(out, contract.ParseSource(filepath.ToSlash(path), sources[path].Content))
	}
	return out
}
