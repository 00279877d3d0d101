package audit

import (
	"context"
	"fmt"
	"time"

	"veridian/internal/contract"
	"veridian/internal/finding"
	"veridian/internal/knowledge"
	"veridian/internal/logger"
)

// Pipeline runs the five analysis phases over one parsed codebase. The
// run-scoped accumulator (understanding, architecture, invariants, findings)
// is owned by the single orchestrating flow; phases never run concurrently.
type Pipeline struct {
	gateway   Gateway
	knowledge *knowledge.Loader
	history   HistorySearcher
	cfg       Config
}

func NewPipeline(gateway Gateway, loader *knowledge.Loader, cfg Config) *Pipeline {
	return &Pipeline{
		gateway:   gateway,
		knowledge: loader,
		cfg:       cfg.withDefaults(),
	}
}

// WithHistory attaches the optional similar-finding searcher.
func (p *Pipeline) WithHistory(h HistorySearcher) *Pipeline {
	p.history = h
	return p
}

// Run executes all five phases and returns the merged, ordered findings.
// Phase 1 failure fails the run; every other failure degrades it. On
// cancellation mid-run the partial result is returned alongside ctx.Err().
func (p *Pipeline) Run(ctx context.Context, project contract.Project, contracts []contract.Contract) (*Result, error) {
	if len(contracts) == 0 {
		return nil, fmt.Errorf("no contracts to audit")
	}

	res := &Result{
		Project:       project,
		ContractCount: len(contracts),
		StartedAt:     time.Now(),
	}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	// Phase 1: the only load-bearing phase. Without a protocol type there
	// is no sound knowledge selection for anything downstream.
	logger.Info("🧠 Phase 1/5: protocol understanding (%d contracts)", len(contracts))
	pu, err := p.runProtocolPhase(ctx, project, contracts)
	if err != nil {
		return nil, fmt.Errorf("protocol understanding failed: %w", err)
	}
	res.Understanding = *pu
	logger.Info("   protocol type: %s (%s)", pu.ProtocolType, truncateForLog(pu.Summary, 120))

	kb := p.knowledge.Load(pu.ProtocolType)

	// Phase 2: degrades to an empty map.
	logger.Info("🗺️  Phase 2/5: architecture mapping")
	arch, err := p.runArchitecturePhase(ctx, pu, contracts)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger.Warn("Architecture mapping degraded: %v", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("architecture mapping failed: %v", err))
		arch = &ArchitectureMap{}
	}
	res.Architecture = *arch

	// Phase 3: degrades to an empty set.
	logger.Info("⚖️  Phase 3/5: invariant identification")
	invs, err := p.runInvariantPhase(ctx, pu, arch, contracts)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger.Warn("Invariant identification degraded: %v", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("invariant identification failed: %v", err))
		invs = &InvariantSet{}
	}
	res.Invariants = *invs

	selected := contract.SelectTop(contracts, pu.CoreContracts, pu.CriticalOperations, p.cfg.SelectionLimit)
	res.SelectedCount = len(selected)
	logger.Info("🎯 Selected %d of %d contracts for deep analysis", len(selected), len(contracts))

	var all []finding.Finding
	idx := 0

	// Phase 4: per contract, per batch; every failure is contained to its
	// batch so the remaining work proceeds.
	logger.Info("🔬 Phase 4/5: deep logic analysis")
	deepFindings, canceled := p.runDeepLogicPhase(ctx, pu, invs, kb, selected, &idx)
	all = append(all, deepFindings...)
	if canceled {
		res.Findings = finding.Merge(all)
		res.Warnings = append(res.Warnings, "run canceled during deep logic analysis")
		return res, ctx.Err()
	}

	// Phase 5: degrades to zero findings.
	logger.Info("🔗 Phase 5/5: cross-contract analysis")
	crossFindings, err := p.runCrossContractPhase(ctx, pu, arch, kb, contracts, selected, &idx)
	if err != nil {
		if ctx.Err() != nil {
			res.Findings = finding.Merge(all)
			return res, ctx.Err()
		}
		logger.Warn("Cross-contract analysis degraded: %v", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("cross-contract analysis failed: %v", err))
	}
	all = append(all, crossFindings...)

	res.Findings = finding.Merge(all)
	logger.Info("✅ Audit complete: %d findings after merge", len(res.Findings))
	counts := finding.CountBySeverity(res.Findings)
	if len(res.Findings) > 0 {
		logger.Info("   severity: %d critical, %d high, %d medium, %d low, %d info",
			counts[finding.SeverityCritical], counts[finding.SeverityHigh],
			counts[finding.SeverityMedium], counts[finding.SeverityLow],
			counts[finding.SeverityInfo])
	}
	return res, nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
