// Package knowledge serves the curated vulnerability-pattern corpus the
// pipeline folds into its prompts. Content is read from disk once per
// protocol type and memoized; a missing or unreadable corpus degrades to a
// built-in bundle and never fails the run.
package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"veridian/internal/logger"
)

// Bundle is the reference text loaded for one protocol type.
type Bundle struct {
	ProtocolPatterns   string
	CrossProtocolRisks string
	EconomicRisks      string
	AuditingTechniques string
}

// DefaultDir is where the embedded knowledge packs are materialized.
const DefaultDir = "strategy/knowledge"

const fallbackType = "OTHER"

// protocolAliases folds model-reported labels onto the pack file set.
var protocolAliases = map[string]string{
	"AMM":        "DEX",
	"EXCHANGE":   "DEX",
	"SWAP":       "DEX",
	"YIELD":      "VAULT",
	"AGGREGATOR": "VAULT",
	"CDP":        "LENDING",
	"BORROWING":  "LENDING",
	"FARMING":    "STAKING",
}

var knownTypes = map[string]bool{
	"LENDING": true,
	"DEX":     true,
	"VAULT":   true,
	"STAKING": true,
	"OTHER":   true,
}

// NormalizeProtocolType maps free-text labels to the corpus key set.
func NormalizeProtocolType(raw string) string {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	if norm == "" {
		return fallbackType
	}
	if alias, ok := protocolAliases[norm]; ok {
		norm = alias
	}
	if !knownTypes[norm] {
		return fallbackType
	}
	return norm
}

// Loader memoizes bundles per protocol type for the process lifetime.
type Loader struct {
	baseDir string

	mu    sync.RWMutex
	cache map[string]*Bundle
	group singleflight.Group
}

func NewLoader(baseDir string) *Loader {
	if baseDir == "" {
		baseDir = DefaultDir
	}
	return &Loader{
		baseDir: baseDir,
		cache:   make(map[string]*Bundle),
	}
}

// Load returns the bundle for protocolType. Never returns nil: on any miss
// it logs a warning and substitutes built-in fallback text.
func (l *Loader) Load(protocolType string) *Bundle {
	key := NormalizeProtocolType(protocolType)

	l.mu.RLock()
	cached := l.cache[key]
	l.mu.RUnlock()
	if cached != nil {
		return cached
	}

	v, _, _ := l.group.Do(key, func() (interface{}, error) {
		bundle := l.build(key)
		l.mu.Lock()
		l.cache[key] = bundle
		l.mu.Unlock()
		return bundle, nil
	})
	return v.(*Bundle)
}

func (l *Loader) build(key string) *Bundle {
	return &Bundle{
		ProtocolPatterns:   l.readSection(strings.ToLower(key)+".md", strings.ToLower(fallbackType)+".md", fallbackPatterns),
		CrossProtocolRisks: l.readSection("cross_protocol.md", "", fallbackCrossProtocol),
		EconomicRisks:      l.readSection("economic.md", "", fallbackEconomic),
		AuditingTechniques: l.readSection("techniques.md", "", fallbackTechniques),
	}
}

// readSection tries the primary file, then the alternate, then the built-in
// fallback text.
func (l *Loader) readSection(name, alternate, fallback string) string {
	path := filepath.Join(l.baseDir, name)
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return string(data)
	}
	if alternate != "" && alternate != name {
		altPath := filepath.Join(l.baseDir, alternate)
		if data, err := os.ReadFile(altPath); err == nil && len(data) > 0 {
			logger.Warn("Knowledge file %s missing, using %s", path, altPath)
			return string(data)
		}
	}
	logger.Warn("Knowledge file %s unavailable, using built-in fallback", path)
	return fallback
}

// FilterCrossContractLines keeps the lines of a techniques corpus relevant to
// multi-contract interaction, capped at limit.
func FilterCrossContractLines(text string, limit int) []string {
	keywords := []string{"cross", "reentr", "callback", "flash"}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, strings.TrimSpace(line))
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Truncate bounds a knowledge section to a character budget, cutting at a
// line boundary where possible.
func Truncate(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	cut := text[:budget]
	if i := strings.LastIndexByte(cut, '\n'); i > budget/2 {
		cut = cut[:i]
	}
	return cut + fmt.Sprintf("\n... (truncated at %d chars)", budget)
}
