// Package prompts renders the per-phase prompt templates. Templates are
// plain text/template files materialized next to the binary, with built-in
// defaults compiled in.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// PromptVariables is the union of fields the phase templates may reference.
type PromptVariables struct {
	ProjectName        string
	ProjectDescription string
	ContractCount      int
	ContractSamples    string

	ProtocolSummary string
	Signatures      string

	ProtocolContext    string
	CriticalPaths      string
	CoreSources        string
	InvariantTemplates string

	Invariants       string
	AttackChecklist  string
	KnowledgeContext string
	SimilarFindings  string
	ContractName     string
	FunctionsCode    string

	ContractSources string
}

var (
	templateCacheMu sync.Mutex
	templateCache   = map[string]*template.Template{}
)

func templateKey(templateContent string) string {
	sum := sha256.Sum256([]byte(templateContent))
	return hex.EncodeToString(sum[:])
}

// BuildPrompt renders templateContent with variables. Parsed templates are
// cached by content hash (cap 64). Render failures return the error text
// inline so a bad template never aborts a run.
func BuildPrompt(templateContent string, variables interface{}) string {
	key := templateKey(templateContent)
	templateCacheMu.Lock()
	tmpl := templateCache[key]
	templateCacheMu.Unlock()

	if tmpl == nil {
		parsed, err := template.New("prompt").Parse(templateContent)
		if err != nil {
			return fmt.Sprintf("failed to parse template: %v\nRaw Template:\n%s", err, templateContent)
		}

		templateCacheMu.Lock()
		if templateCache[key] == nil {
			if len(templateCache) >= 64 {
				templateCache = map[string]*template.Template{}
			}
			templateCache[key] = parsed
			tmpl = parsed
		} else {
			tmpl = templateCache[key]
		}
		templateCacheMu.Unlock()
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, variables); err != nil {
		return fmt.Sprintf("failed to execute template: %v\nRaw Template:\n%s", err, templateContent)
	}

	return result.String()
}
