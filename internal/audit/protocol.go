package audit

import (
	"context"
	"strings"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/ui"
	"veridian/strategy/prompts"
)

const protocolSystem = "You are a smart contract security expert classifying an unfamiliar protocol. Respond with a single valid JSON object and nothing else."

// runProtocolPhase builds the ProtocolUnderstanding from a bounded sample of
// the codebase. This is the only phase whose failure fails the run.
func (p *Pipeline) runProtocolPhase(ctx context.Context, project contract.Project, contracts []contract.Contract) (*ProtocolUnderstanding, error) {
	stop := ui.StartSpinner("Phase 1: understanding the protocol...")
	defer func() { stop <- true }()

	vars := &prompts.PromptVariables{
		ProjectName:        project.Name,
		ProjectDescription: describeProject(project),
		ContractCount:      len(contracts),
		ContractSamples:    sampleContracts(contracts, p.cfg.SampleContracts, p.cfg.SampleLines),
	}
	userPrompt := prompts.BuildPrompt(prompts.LoadTemplate(prompts.PhaseProtocol), vars)

	var pu ProtocolUnderstanding
	err := p.completeObject(ctx, protocolSystem, userPrompt, ai.Options{
		Temperature: 0.1,
		MaxTokens:   2048,
		JSONMode:    true,
	}, &pu)
	if err != nil {
		return nil, err
	}

	pu.ProtocolType = strings.ToUpper(strings.TrimSpace(pu.ProtocolType))
	if pu.ProtocolType == "" && project.ProtocolType != "" {
		pu.ProtocolType = strings.ToUpper(strings.TrimSpace(project.ProtocolType))
	}
	return &pu, nil
}

func describeProject(project contract.Project) string {
	parts := make([]string, 0, 3)
	if project.Description != "" {
		parts = append(parts, project.Description)
	}
	if project.ProtocolType != "" {
		parts = append(parts, "Operator-suggested protocol type: "+project.ProtocolType)
	}
	if len(project.Dependencies) > 0 {
		parts = append(parts, "Declared dependencies: "+strings.Join(project.Dependencies, ", "))
	}
	return strings.Join(parts, "\n")
}
