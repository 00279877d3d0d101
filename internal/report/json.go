package report

import (
	"encoding/json"
	"fmt"
	"time"

	"veridian/internal/audit"
	"veridian/internal/finding"
)

// jsonDocument is the machine-readable artifact written beside the markdown
// report, for diffing runs and feeding downstream tooling.
type jsonDocument struct {
	Project       string                      `json:"project"`
	ProtocolType  string                      `json:"protocolType"`
	Provider      string                      `json:"provider"`
	Model         string                      `json:"model,omitempty"`
	GeneratedAt   time.Time                   `json:"generatedAt"`
	DurationSecs  float64                     `json:"durationSecs"`
	ContractCount int                         `json:"contractCount"`
	SelectedCount int                         `json:"selectedCount"`
	AICalls       int                         `json:"aiCalls"`
	AIFailures    int                         `json:"aiFailures"`
	Partial       bool                        `json:"partial,omitempty"`
	Severities    map[finding.Severity]int    `json:"severities"`
	Understanding audit.ProtocolUnderstanding `json:"understanding"`
	Invariants    []audit.Invariant           `json:"invariants"`
	Findings      []finding.Finding           `json:"findings"`
	Warnings      []string                    `json:"warnings,omitempty"`
}

type JSONGenerator struct{}

func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

func (g *JSONGenerator) Generate(res *audit.Result, meta Meta) (string, error) {
	doc := jsonDocument{
		Project:       res.Project.Name,
		ProtocolType:  res.Understanding.ProtocolType,
		Provider:      meta.Provider,
		Model:         meta.Model,
		GeneratedAt:   time.Now(),
		DurationSecs:  res.Duration.Seconds(),
		ContractCount: res.ContractCount,
		SelectedCount: res.SelectedCount,
		AICalls:       meta.Calls,
		AIFailures:    meta.Failures,
		Partial:       meta.Partial,
		Severities:    finding.CountBySeverity(res.Findings),
		Understanding: res.Understanding,
		Invariants:    res.Invariants.All(),
		Findings:      res.Findings,
		Warnings:      res.Warnings,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return string(data) + "\n", nil
}
