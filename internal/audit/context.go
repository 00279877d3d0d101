package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"veridian/internal/contract"
	"veridian/internal/logger"
)

// attackChecklist is the static vector list folded into every deep-logic
// prompt, independent of protocol type.
const attackChecklist = `- Reentrancy through any external call, including token hooks
- Missing or wrong access control on state-changing functions
- Arithmetic: rounding direction, precision loss, unchecked casts
- Unchecked return values of external calls
- Oracle/price reads manipulable in the same transaction
- Flash-loan-assisted state manipulation
- Front-running and sandwich exposure of user operations
- Denial of service via unbounded loops or forced reverts
- Accounting drift between tracked totals and actual balances`

// sampleContracts renders the bounded source sample for protocol
// understanding: first maxFiles files, first maxLines lines each.
func sampleContracts(contracts []contract.Contract, maxFiles, maxLines int) string {
	if len(contracts) > maxFiles {
		contracts = contracts[:maxFiles]
	}
	var b strings.Builder
	for _, c := range contracts {
		b.WriteString(fmt.Sprintf("=== %s ===\n", c.FilePath))
		lines := strings.Split(c.SourceCode, "\n")
		if len(lines) > maxLines {
			lines = lines[:maxLines]
			b.WriteString(strings.Join(lines, "\n"))
			b.WriteString("\n... (truncated)\n\n")
		} else {
			b.WriteString(c.SourceCode)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// protocolContext renders the Phase 1 output as prompt context.
func protocolContext(pu *ProtocolUnderstanding) string {
	data, err := json.MarshalIndent(pu, "", "  ")
	if err != nil {
		return pu.Summary
	}
	return string(data)
}

func criticalPathsText(arch *ArchitectureMap) string {
	if len(arch.CriticalPaths) == 0 {
		return "(none identified)"
	}
	var b strings.Builder
	for _, p := range arch.CriticalPaths {
		b.WriteString(fmt.Sprintf("- %s: %s\n", p.Name, strings.Join(p.Steps, " -> ")))
	}
	return b.String()
}

// coreContractSources collects full source of contracts whose names match a
// coreContracts entry (substring, case-insensitive), capped at maxContracts
// files of maxChars each.
func coreContractSources(pu *ProtocolUnderstanding, contracts []contract.Contract, maxContracts, maxChars int) string {
	var b strings.Builder
	count := 0
	for _, c := range contracts {
		if count >= maxContracts {
			break
		}
		if !matchesCoreContract(&c, pu.CoreContracts) {
			continue
		}
		count++
		b.WriteString(fmt.Sprintf("=== %s ===\n", c.FilePath))
		src := c.SourceCode
		if len(src) > maxChars {
			src = src[:maxChars] + "\n... (truncated)"
		}
		b.WriteString(src)
		b.WriteString("\n\n")
	}
	if count == 0 {
		return "(no contracts matched the core contract names)"
	}
	return b.String()
}

func matchesCoreContract(c *contract.Contract, coreContracts []string) bool {
	names := append([]string{c.Name}, c.DeclaredContracts...)
	for _, core := range coreContracts {
		needle := strings.ToLower(strings.TrimSpace(core))
		if needle == "" {
			continue
		}
		for _, name := range names {
			lower := strings.ToLower(name)
			if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
				return true
			}
		}
	}
	return false
}

// invariantsForContract selects the invariants that name the contract; when
// none do, the whole set applies, capped.
func invariantsForContract(invs *InvariantSet, contractName string, limit int) string {
	all := invs.All()
	if len(all) == 0 {
		return "(no invariants identified)"
	}

	lower := strings.ToLower(contractName)
	var relevant []Invariant
	for _, inv := range all {
		for _, c := range inv.Contracts {
			if strings.Contains(strings.ToLower(c), lower) || strings.Contains(lower, strings.ToLower(c)) {
				relevant = append(relevant, inv)
				break
			}
		}
	}
	if len(relevant) == 0 {
		relevant = all
	}
	if len(relevant) > limit {
		relevant = relevant[:limit]
	}

	var b strings.Builder
	for _, inv := range relevant {
		b.WriteString(fmt.Sprintf("- [%s] %s", strings.ToUpper(inv.Severity), inv.Statement))
		if len(inv.Contracts) > 0 {
			b.WriteString(" (" + strings.Join(inv.Contracts, ", ") + ")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// similarFindingsContext queries the optional history collaborator; any
// failure degrades to an empty enrichment.
func (p *Pipeline) similarFindingsContext(ctx context.Context, queryText string) string {
	if p.history == nil {
		return ""
	}
	records, err := p.history.SearchSimilar(ctx, queryText, p.cfg.HistoryLimit)
	if err != nil {
		logger.Debug("History search unavailable: %v", err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range records {
		b.WriteString(fmt.Sprintf("- [%s] %s (%s)\n", r.Severity, r.Title, r.FilePath))
	}
	return b.String()
}

// batchFunctions renders one batch of functions as prompt context.
func batchFunctions(fns []contract.Function) string {
	var b strings.Builder
	for _, fn := range fns {
		b.WriteString(fmt.Sprintf("--- function %s ---\n%s\n\n", fn.Name, fn.Code))
	}
	return b.String()
}

func invariantTemplatesText(templates []string) string {
	var b strings.Builder
	for _, t := range templates {
		b.WriteString("- " + t + "\n")
	}
	return b.String()
}
