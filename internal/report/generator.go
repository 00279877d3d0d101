package report

import (
	"fmt"
	"strings"
	"time"

	"veridian/internal/audit"
	"veridian/internal/finding"
)

// Meta carries run facts that live outside the pipeline result.
type Meta struct {
	Provider string
	Model    string
	Calls    int
	Failures int
	Partial  bool
}

type Generator interface {
	Generate(res *audit.Result, meta Meta) (string, error)
}

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (g *MarkdownGenerator) Generate(res *audit.Result, meta Meta) (string, error) {
	var b strings.Builder

	b.WriteString("# Veridian Audit Report\n\n")
	if meta.Partial {
		b.WriteString("> ⚠️ Audit was interrupted. This report covers the phases that completed.\n\n")
	}
	fmt.Fprintf(&b, "**Project**: %s\n", res.Project.Name)
	fmt.Fprintf(&b, "**Protocol Type**: %s\n", orUnknown(res.Understanding.ProtocolType))
	fmt.Fprintf(&b, "**AI Provider**: %s\n", providerLabel(meta))
	fmt.Fprintf(&b, "**Audit Time**: %s\n", res.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Duration**: %s\n\n", res.Duration.Round(time.Second))

	if res.Understanding.Summary != "" {
		b.WriteString("## Protocol Summary\n\n")
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(res.Understanding.Summary))
	}

	b.WriteString("## Audit Statistics\n\n")
	fmt.Fprintf(&b, "- **Contracts Parsed**: %d\n", res.ContractCount)
	fmt.Fprintf(&b, "- **Contracts Deep-Analyzed**: %d\n", res.SelectedCount)
	fmt.Fprintf(&b, "- **Invariants Tracked**: %d\n", len(res.Invariants.All()))
	fmt.Fprintf(&b, "- **AI Calls**: %d (%d failed)\n", meta.Calls, meta.Failures)
	fmt.Fprintf(&b, "- **Findings**: %d\n\n", len(res.Findings))

	if dist := finding.CountBySeverity(res.Findings); len(dist) > 0 {
		b.WriteString("## Severity Distribution\n\n")
		for _, sev := range severityOrder {
			if n := dist[sev]; n > 0 {
				fmt.Fprintf(&b, "- %s **%s**: %d\n", severityIcon(sev), sev, n)
			}
		}
		b.WriteString("\n")
	}

	if len(res.Invariants.All()) > 0 {
		b.WriteString("## Protocol Invariants\n\n")
		for _, inv := range res.Invariants.All() {
			fmt.Fprintf(&b, "- **[%s]** %s\n", strings.ToUpper(orUnknown(inv.Severity)), inv.Statement)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings\n\n")
	if len(res.Findings) == 0 {
		b.WriteString("✅ No findings survived normalization and deduplication.\n\n")
	}
	for i, f := range res.Findings {
		writeFinding(&b, i+1, f)
	}

	if len(res.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- ⚠️ %s\n", w)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

func writeFinding(b *strings.Builder, ordinal int, f finding.Finding) {
	fmt.Fprintf(b, "### %d. %s [%s] %s\n\n", ordinal, severityIcon(f.Severity), f.Severity, f.Title)
	fmt.Fprintf(b, "- **ID**: `%s`\n", f.ID)
	fmt.Fprintf(b, "- **Category**: %s\n", f.Category)
	fmt.Fprintf(b, "- **Location**: `%s`\n", locationLabel(f.Location))
	fmt.Fprintf(b, "- **Confidence**: %.0f%%\n", f.Confidence*100)
	fmt.Fprintf(b, "- **Detected By**: %s\n\n", f.DetectionMethod)

	if f.Description != "" {
		fmt.Fprintf(b, "%s\n\n", strings.TrimSpace(f.Description))
	}

	if f.CodeSnippet != "" {
		snippet := strings.TrimSpace(f.CodeSnippet)
		// avoid nesting fences when the model already supplied them
		if strings.HasPrefix(snippet, "```") {
			fmt.Fprintf(b, "%s\n\n", snippet)
		} else {
			fmt.Fprintf(b, "```solidity\n%s\n```\n\n", snippet)
		}
	}

	if f.Remediation != "" {
		fmt.Fprintf(b, "**Remediation**: %s\n\n", strings.TrimSpace(f.Remediation))
	}

	if len(f.References) > 0 {
		b.WriteString("**References**:\n")
		for _, ref := range f.References {
			fmt.Fprintf(b, "- %s\n", ref)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
}

var severityOrder = []finding.Severity{
	finding.SeverityCritical,
	finding.SeverityHigh,
	finding.SeverityMedium,
	finding.SeverityLow,
	finding.SeverityInfo,
}

func severityIcon(severity finding.Severity) string {
	switch severity {
	case finding.SeverityCritical:
		return "🔴"
	case finding.SeverityHigh:
		return "🟠"
	case finding.SeverityMedium:
		return "🟡"
	case finding.SeverityLow:
		return "🟢"
	default:
		return "⚪"
	}
}

func locationLabel(loc finding.Location) string {
	label := loc.FilePath
	if loc.FunctionName != "" {
		label += " " + loc.FunctionName + "()"
	}
	if loc.StartLine > 0 {
		if loc.EndLine > loc.StartLine {
			label += fmt.Sprintf(":%d-%d", loc.StartLine, loc.EndLine)
		} else {
			label += fmt.Sprintf(":%d", loc.StartLine)
		}
	}
	return label
}

func providerLabel(meta Meta) string {
	if meta.Model == "" {
		return orUnknown(meta.Provider)
	}
	return fmt.Sprintf("%s (%s)", orUnknown(meta.Provider), meta.Model)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "UNKNOWN"
	}
	return s
}
