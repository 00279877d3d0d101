package audit

import (
	"context"
	"strings"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/knowledge"
	"veridian/internal/ui"
	"veridian/strategy/prompts"
)

const architectureSystem = "You are a smart contract security expert mapping how a protocol's contracts relate. Respond with a single valid JSON object and nothing else."

// signatureBudget bounds the concatenated signature view. Signature blocks
// are small, so this only bites on very large codebases.
const signatureBudget = 24000

// runArchitecturePhase maps the system structure from signature-level views
// of every contract. Failures degrade: Run substitutes an empty map.
func (p *Pipeline) runArchitecturePhase(ctx context.Context, pu *ProtocolUnderstanding, contracts []contract.Contract) (*ArchitectureMap, error) {
	stop := ui.StartSpinner("Phase 2: mapping the architecture...")
	defer func() { stop <- true }()

	var sb strings.Builder
	for _, c := range contracts {
		sb.WriteString("=== ")
		sb.WriteString(c.FilePath)
		sb.WriteString(" ===\n")
		sb.WriteString(c.Signatures())
		sb.WriteString("\n")
	}

	vars := &prompts.PromptVariables{
		ProtocolContext: protocolContext(pu),
		Signatures:      knowledge.Truncate(sb.String(), signatureBudget),
	}
	userPrompt := prompts.BuildPrompt(prompts.LoadTemplate(prompts.PhaseArchitecture), vars)

	var arch ArchitectureMap
	err := p.completeObject(ctx, architectureSystem, userPrompt, ai.Options{
		Temperature: 0.1,
		MaxTokens:   2048,
		JSONMode:    true,
	}, &arch)
	if err != nil {
		return nil, err
	}
	return &arch, nil
}
