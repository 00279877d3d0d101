// Package contract holds the parsed source-unit model and the lexical
// heuristics the pipeline uses to triage it: signature extraction,
// function splitting, risk filtering and relevance scoring.
package contract

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Contract is one parsed source file. Immutable for the lifetime of a run.
type Contract struct {
	FilePath          string
	Name              string
	SourceCode        string
	Imports           []string
	Pragmas           []string
	DeclaredContracts []string
}

// Project describes the codebase under audit.
type Project struct {
	Name         string
	ProtocolType string
	Description  string
	Dependencies []string
}

var (
	importRe   = regexp.MustCompile(`(?m)^\s*import\s+([^;]+);`)
	pragmaRe   = regexp.MustCompile(`(?m)^\s*pragma\s+([^;]+);`)
	declRe     = regexp.MustCompile(`(?m)^\s*(?:abstract\s+)?(contract|interface|library)\s+([A-Za-z_]\w*)`)
	lineCommRe = regexp.MustCompile(`(?m)//.*$`)
)

// ParseSource builds a Contract from raw source text. Extraction is lexical:
// import and pragma directives plus contract/interface/library declarations.
func ParseSource(filePath, source string) Contract {
	c := Contract{
		FilePath:   filePath,
		Name:       strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
		SourceCode: source,
	}
	for _, m := range importRe.FindAllStringSubmatch(source, -1) {
		c.Imports = append(c.Imports, strings.TrimSpace(m[1]))
	}
	for _, m := range pragmaRe.FindAllStringSubmatch(source, -1) {
		c.Pragmas = append(c.Pragmas, strings.TrimSpace(m[1]))
	}
	for _, m := range declRe.FindAllStringSubmatch(source, -1) {
		c.DeclaredContracts = append(c.DeclaredContracts, m[2])
	}
	return c
}

// LineCount reports source length in lines.
func (c *Contract) LineCount() int {
	if c.SourceCode == "" {
		return 0
	}
	return strings.Count(c.SourceCode, "\n") + 1
}

var (
	funcSigRe  = regexp.MustCompile(`(?m)^\s*function\s+[^{;]+`)
	stateVarRe = regexp.MustCompile(`(?m)^\s{0,4}(?:uint\d*|int\d*|address|bool|bytes\d*|string|mapping\s*\()[^;{}]*;`)
)

// Signatures returns a compact structural summary of one contract: imports,
// state-variable declarations and public/external function signatures.
// Used to bound prompt size where full source would blow the budget.
func (c *Contract) Signatures() string {
	var b strings.Builder
	b.WriteString("// " + c.FilePath + "\n")
	if len(c.DeclaredContracts) > 0 {
		b.WriteString("declares: " + strings.Join(c.DeclaredContracts, ", ") + "\n")
	}
	for _, imp := range c.Imports {
		b.WriteString("import " + imp + ";\n")
	}
	for _, m := range stateVarRe.FindAllString(c.SourceCode, -1) {
		b.WriteString(strings.TrimSpace(stripLineComments(m)) + "\n")
	}
	for _, m := range funcSigRe.FindAllString(c.SourceCode, -1) {
		sig := strings.TrimSpace(stripLineComments(m))
		if strings.Contains(sig, "public") || strings.Contains(sig, "external") {
			b.WriteString(sig + "\n")
		}
	}
	return b.String()
}

func stripLineComments(s string) string {
	return lineCommRe.ReplaceAllString(s, "")
}
