package audit

import (
	"context"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/knowledge"
	"veridian/internal/ui"
	"veridian/strategy/prompts"
)

const invariantSystem = "You are a smart contract security expert stating the safety properties a protocol must preserve. Respond with a single valid JSON object and nothing else."

// runInvariantPhase derives protocol-specific invariants from the accumulated
// context plus full source of the core contracts. Failures degrade: Run
// substitutes an empty set.
func (p *Pipeline) runInvariantPhase(ctx context.Context, pu *ProtocolUnderstanding, arch *ArchitectureMap, contracts []contract.Contract) (*InvariantSet, error) {
	stop := ui.StartSpinner("Phase 3: identifying invariants...")
	defer func() { stop <- true }()

	vars := &prompts.PromptVariables{
		ProtocolContext:    protocolContext(pu),
		CriticalPaths:      criticalPathsText(arch),
		CoreSources:        coreContractSources(pu, contracts, p.cfg.CoreSourceCap, p.cfg.CoreSourceChars),
		InvariantTemplates: invariantTemplatesText(knowledge.InvariantTemplates(pu.ProtocolType)),
	}
	userPrompt := prompts.BuildPrompt(prompts.LoadTemplate(prompts.PhaseInvariants), vars)

	var invs InvariantSet
	err := p.completeObject(ctx, invariantSystem, userPrompt, ai.Options{
		Temperature: 0.2,
		MaxTokens:   4096,
		JSONMode:    true,
	}, &invs)
	if err != nil {
		return nil, err
	}
	return &invs, nil
}
