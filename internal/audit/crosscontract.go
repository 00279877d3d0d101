package audit

import (
	"context"
	"strings"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/finding"
	"veridian/internal/knowledge"
	"veridian/internal/ui"
	"veridian/strategy/prompts"
)

const crossContractSystem = "You are a smart contract security auditor looking for vulnerabilities that only emerge from interactions between contracts: state desynchronization, reentrancy across call chains, trust boundary violations, economic attacks spanning components. Respond with a single valid JSON object and nothing else."

// runCrossContractPhase analyzes the contracts sitting on the architecture's
// critical paths together, looking for interaction-level flaws no single
// contract exhibits alone. Failures degrade: Run keeps the deep-logic results.
func (p *Pipeline) runCrossContractPhase(ctx context.Context, pu *ProtocolUnderstanding, arch *ArchitectureMap, kb *knowledge.Bundle, contracts, selected []contract.Contract, idx *int) ([]finding.Finding, error) {
	stop := ui.StartSpinner("Phase 5: cross-contract analysis...")
	defer func() { stop <- true }()

	targets := contractsOnCriticalPaths(arch, contracts)
	if len(targets) == 0 {
		targets = selected
	}
	if len(targets) > p.cfg.SelectionLimit {
		targets = targets[:p.cfg.SelectionLimit]
	}
	if len(targets) == 0 {
		return nil, nil
	}

	vars := &prompts.PromptVariables{
		ProtocolContext:  protocolContext(pu),
		CriticalPaths:    criticalPathsText(arch),
		KnowledgeContext: p.crossKnowledgeContext(kb),
		ContractSources:  crossContractSources(targets, p.cfg.CoreSourceChars),
	}
	userPrompt := prompts.BuildPrompt(prompts.LoadTemplate(prompts.PhaseCrossContract), vars)

	raws, err := p.completeFindings(ctx, crossContractSystem, userPrompt, ai.Options{
		Temperature: 0.3,
		MaxTokens:   4096,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]finding.Finding, 0, len(raws))
	for _, raw := range raws {
		out = append(out, finding.Normalize(raw, targets[0].FilePath, *idx, finding.PrefixCrossContract))
		*idx++
	}
	return out, nil
}

func (p *Pipeline) crossKnowledgeContext(kb *knowledge.Bundle) string {
	parts := []string{
		knowledge.Truncate(kb.CrossProtocolRisks, p.cfg.CrossBudget),
		knowledge.Truncate(kb.EconomicRisks, p.cfg.EconomicBudget),
	}
	if lines := knowledge.FilterCrossContractLines(kb.AuditingTechniques, p.cfg.CrossLinesCap); len(lines) > 0 {
		parts = append(parts, "Interaction-relevant techniques:\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// contractsOnCriticalPaths keeps the contracts whose names appear in any
// critical path step. Input order is preserved.
func contractsOnCriticalPaths(arch *ArchitectureMap, contracts []contract.Contract) []contract.Contract {
	if arch == nil || len(arch.CriticalPaths) == 0 {
		return nil
	}
	var out []contract.Contract
	for _, c := range contracts {
		if onCriticalPath(&c, arch.CriticalPaths) {
			out = append(out, c)
		}
	}
	return out
}

func onCriticalPath(c *contract.Contract, paths []CriticalPath) bool {
	names := make([]string, 0, 1+len(c.DeclaredContracts))
	if c.Name != "" {
		names = append(names, strings.ToLower(c.Name))
	}
	for _, d := range c.DeclaredContracts {
		names = append(names, strings.ToLower(d))
	}
	for _, path := range paths {
		for _, step := range path.Steps {
			lower := strings.ToLower(step)
			for _, name := range names {
				if name != "" && strings.Contains(lower, name) {
					return true
				}
			}
		}
	}
	return false
}

func crossContractSources(targets []contract.Contract, maxChars int) string {
	var sb strings.Builder
	for _, c := range targets {
		sb.WriteString("=== ")
		sb.WriteString(c.FilePath)
		sb.WriteString(" ===\n")
		sb.WriteString(knowledge.Truncate(c.SourceCode, maxChars))
		sb.WriteString("\n\n")
	}
	return sb.String()
}
