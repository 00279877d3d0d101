// Package audit implements the multi-phase analysis pipeline: protocol
// understanding, architecture mapping, invariant identification, deep logic
// analysis and cross-contract analysis, with findings merged at the end.
// Each phase's prompt context is built from the previous phase's typed
// output; phases run strictly in sequence.
package audit

import (
	"context"
	"time"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/finding"
	"veridian/internal/store"
)

// Gateway is the inference collaborator. It returns raw model text; callers
// decode it tolerantly and treat garbage as an empty contribution.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ai.Options) (string, error)
}

// HistorySearcher enriches prompts with previously confirmed findings.
// Optional: a nil searcher or a failed search yields an empty enrichment.
type HistorySearcher interface {
	SearchSimilar(ctx context.Context, text string, limit int) ([]store.FindingRecord, error)
}

// ProtocolUnderstanding is Phase 1 output. Created once per run, read-only
// afterward; its protocol type drives knowledge selection for every later
// phase.
type ProtocolUnderstanding struct {
	ProtocolType         string   `json:"protocolType"`
	Summary              string   `json:"summary"`
	CoreContracts        []string `json:"coreContracts"`
	EntryPoints          []string `json:"entryPoints"`
	ValueFlows           []string `json:"valueFlows"`
	Actors               []string `json:"actors"`
	CriticalOperations   []string `json:"criticalOperations"`
	ExternalDependencies []string `json:"externalDependencies"`
}

// CriticalPath is one named value-moving flow through the system.
type CriticalPath struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// ArchitectureMap is Phase 2 output. An empty map means "no prioritization
// hint", never an error.
type ArchitectureMap struct {
	ContractRelationships []string       `json:"contractRelationships"`
	StateVariables        []string       `json:"stateVariables"`
	AccessControl         []string       `json:"accessControl"`
	Upgradeability        string         `json:"upgradeability"`
	CriticalPaths         []CriticalPath `json:"criticalPaths"`
}

// Invariant is one condition the protocol must uphold.
type Invariant struct {
	Statement string   `json:"statement"`
	Contracts []string `json:"contracts"`
	Variables []string `json:"variables"`
	Severity  string   `json:"severity"`
}

// InvariantSet is Phase 3 output, grouped by invariant class.
type InvariantSet struct {
	AccountingInvariants    []Invariant `json:"accountingInvariants"`
	StateMachineInvariants  []Invariant `json:"stateMachineInvariants"`
	AccessInvariants        []Invariant `json:"accessInvariants"`
	EconomicInvariants      []Invariant `json:"economicInvariants"`
	TemporalInvariants      []Invariant `json:"temporalInvariants"`
	CrossContractInvariants []Invariant `json:"crossContractInvariants"`
}

// All flattens the set preserving class order.
func (s *InvariantSet) All() []Invariant {
	out := make([]Invariant, 0,
		len(s.AccountingInvariants)+len(s.StateMachineInvariants)+len(s.AccessInvariants)+
			len(s.EconomicInvariants)+len(s.TemporalInvariants)+len(s.CrossContractInvariants))
	out = append(out, s.AccountingInvariants...)
	out = append(out, s.StateMachineInvariants...)
	out = append(out, s.AccessInvariants...)
	out = append(out, s.EconomicInvariants...)
	out = append(out, s.TemporalInvariants...)
	out = append(out, s.CrossContractInvariants...)
	return out
}

// Empty reports whether Phase 3 contributed nothing.
func (s *InvariantSet) Empty() bool {
	return len(s.All()) == 0
}

// Config bounds the pipeline's prompt sizes and call counts.
type Config struct {
	BatchSize        int // functions per deep-logic call
	SelectionLimit   int // contracts kept for expensive phases
	SampleContracts  int // files sampled for protocol understanding
	SampleLines      int // lines per sampled file
	CoreSourceCap    int // full-source contracts for invariant phase
	CoreSourceChars  int // per-contract char budget, invariant phase
	PatternsBudget   int // protocol-pattern chars, deep logic phase
	TechniquesBudget int // technique chars, deep logic phase
	CrossBudget      int // cross-protocol chars, cross-contract phase
	EconomicBudget   int // economic chars, cross-contract phase
	CrossLinesCap    int // technique lines kept for cross-contract phase
	HistoryLimit     int // similar historical findings folded into prompts
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.SelectionLimit <= 0 {
		c.SelectionLimit = contract.DefaultSelectionLimit
	}
	if c.SampleContracts <= 0 {
		c.SampleContracts = 10
	}
	if c.SampleLines <= 0 {
		c.SampleLines = 120
	}
	if c.CoreSourceCap <= 0 {
		c.CoreSourceCap = 5
	}
	if c.CoreSourceChars <= 0 {
		c.CoreSourceChars = 8000
	}
	if c.PatternsBudget <= 0 {
		c.PatternsBudget = 4000
	}
	if c.TechniquesBudget <= 0 {
		c.TechniquesBudget = 2000
	}
	if c.CrossBudget <= 0 {
		c.CrossBudget = 3000
	}
	if c.EconomicBudget <= 0 {
		c.EconomicBudget = 3000
	}
	if c.CrossLinesCap <= 0 {
		c.CrossLinesCap = 50
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
	return c
}

// Result is everything one run produced. Findings are merged and ordered;
// Warnings records degraded phases.
type Result struct {
	Project       contract.Project
	Understanding ProtocolUnderstanding
	Architecture  ArchitectureMap
	Invariants    InvariantSet
	Findings      []finding.Finding
	ContractCount int
	SelectedCount int
	Warnings      []string
	StartedAt     time.Time
	Duration      time.Duration
}
