package audit

import (
	"context"
	"fmt"
	"strings"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/finding"
	"veridian/internal/knowledge"
	"veridian/internal/logger"
	"veridian/internal/ui"
	"veridian/strategy/prompts"
)

const deepLogicSystem = "You are a smart contract security auditor hunting for logic flaws that break the protocol's invariants. Report only issues grounded in the code shown. Respond with a single valid JSON object and nothing else."

// deepLogicInvariantCap bounds how many invariants ride along per batch.
const deepLogicInvariantCap = 15

type deepLogicBatch struct {
	contract  contract.Contract
	functions []contract.Function
	index     int // batch ordinal within the contract
	total     int // batches for this contract
}

// runDeepLogicPhase runs batched function-level analysis over the selected
// contracts. Each batch fails in isolation; cancellation stops the loop and
// reports canceled=true so Run can salvage what accumulated so far.
func (p *Pipeline) runDeepLogicPhase(ctx context.Context, pu *ProtocolUnderstanding, invs *InvariantSet, kb *knowledge.Bundle, selected []contract.Contract, idx *int) ([]finding.Finding, bool) {
	batches := p.collectBatches(selected)
	if len(batches) == 0 {
		logger.Info("   no high-risk functions to analyze")
		return nil, false
	}

	bar := ui.NewProgressBar(len(batches), "🔬 Deep logic")
	knowledgeCtx := knowledge.Truncate(kb.ProtocolPatterns, p.cfg.PatternsBudget) +
		"\n\n" + knowledge.Truncate(kb.AuditingTechniques, p.cfg.TechniquesBudget)
	puCtx := protocolContext(pu)

	var out []finding.Finding
	for _, b := range batches {
		if ctx.Err() != nil {
			return out, true
		}
		raws, err := p.analyzeBatchSafe(ctx, puCtx, knowledgeCtx, invs, b)
		if err != nil {
			if ctx.Err() != nil {
				return out, true
			}
			logger.Warn("Batch %d/%d of %s failed: %v (skipping)", b.index+1, b.total, b.contract.FilePath, err)
			bar.Increment()
			continue
		}
		for _, raw := range raws {
			out = append(out, finding.Normalize(raw, b.contract.FilePath, *idx, finding.PrefixDeepLogic))
			*idx++
		}
		bar.AddFindings(len(raws))
		bar.Increment()
	}
	bar.Finish()
	return out, false
}

func (p *Pipeline) collectBatches(selected []contract.Contract) []deepLogicBatch {
	var batches []deepLogicBatch
	for _, c := range selected {
		fns := contract.FilterHighRisk(contract.ExtractFunctions(c.SourceCode))
		if len(fns) == 0 {
			logger.InfoFileOnly("No high-risk functions in %s", c.FilePath)
			continue
		}
		chunks := chunkFunctions(fns, p.cfg.BatchSize)
		for i, chunk := range chunks {
			batches = append(batches, deepLogicBatch{
				contract:  c,
				functions: chunk,
				index:     i,
				total:     len(chunks),
			})
		}
	}
	return batches
}

func chunkFunctions(fns []contract.Function, size int) [][]contract.Function {
	if size <= 0 {
		size = 1
	}
	var chunks [][]contract.Function
	for start := 0; start < len(fns); start += size {
		end := start + size
		if end > len(fns) {
			end = len(fns)
		}
		chunks = append(chunks, fns[start:end])
	}
	return chunks
}

// analyzeBatchSafe converts a panic inside one batch into that batch's error,
// keeping the containment guarantee even against bugs in prompt assembly.
func (p *Pipeline) analyzeBatchSafe(ctx context.Context, puCtx, knowledgeCtx string, invs *InvariantSet, b deepLogicBatch) (raws []finding.RawFinding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch analysis panicked: %v", r)
		}
	}()
	return p.analyzeBatch(ctx, puCtx, knowledgeCtx, invs, b)
}

func (p *Pipeline) analyzeBatch(ctx context.Context, puCtx, knowledgeCtx string, invs *InvariantSet, b deepLogicBatch) ([]finding.RawFinding, error) {
	names := make([]string, 0, len(b.functions))
	for _, fn := range b.functions {
		names = append(names, fn.Name)
	}
	vars := &prompts.PromptVariables{
		ProtocolContext:  puCtx,
		Invariants:       invariantsForContract(invs, b.contract.Name, deepLogicInvariantCap),
		AttackChecklist:  attackChecklist,
		KnowledgeContext: knowledgeCtx,
		SimilarFindings:  p.similarFindingsContext(ctx, b.contract.Name+" "+strings.Join(names, " ")),
		ContractName:     b.contract.Name,
		FunctionsCode:    batchFunctions(b.functions),
	}
	userPrompt := prompts.BuildPrompt(prompts.LoadTemplate(prompts.PhaseDeepLogic), vars)
	return p.completeFindings(ctx, deepLogicSystem, userPrompt, ai.Options{
		Temperature: 0.2,
		MaxTokens:   4096,
		JSONMode:    true,
	})
}
