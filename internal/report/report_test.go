package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridian/internal/audit"
	"veridian/internal/contract"
	"veridian/internal/finding"
)

func sampleResult() *audit.Result {
	return &audit.Result{
		Project: contract.Project{Name: "TestVault"},
		Understanding: audit.ProtocolUnderstanding{
			ProtocolType: "VAULT",
			Summary:      "Single-asset vault with share accounting.",
		},
		Invariants: audit.InvariantSet{
			AccountingInvariants: []audit.Invariant{
				{Statement: "Sum of shares equals totalShares", Severity: "high"},
			},
		},
		Findings: []finding.Finding{
			{
				ID:              "DL-1700000000-0",
				Category:        finding.CategoryReentrancy,
				Severity:        finding.SeverityCritical,
				Title:           "Reentrant withdraw drains the vault",
				Description:     "External call precedes the balance decrement.",
				Location:        finding.Location{FilePath: "contracts/Vault.sol", FunctionName: "withdraw", StartLine: 14, EndLine: 20},
				DetectionMethod: finding.MethodDeepLogic,
				Confidence:      0.9,
				CodeSnippet:     "msg.sender.call{value: amount}(\"\");",
				Remediation:     "Apply checks-effects-interactions.",
				References:      []string{"SWC-107"},
			},
			{
				ID:              "CC-1700000000-1",
				Category:        finding.CategoryCrossContract,
				Severity:        finding.SeverityHigh,
				Title:           "Unprotected price feed",
				Location:        finding.Location{FilePath: "contracts/PriceFeed.sol", StartLine: 7},
				DetectionMethod: finding.MethodCrossContract,
				Confidence:      0.7,
			},
		},
		ContractCount: 4,
		SelectedCount: 2,
		Warnings:      []string{"architecture mapping failed: rate limited"},
		StartedAt:     time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC),
		Duration:      95 * time.Second,
	}
}

func sampleMeta() Meta {
	return Meta{Provider: "DeepSeek", Model: "deepseek-chat", Calls: 12, Failures: 1}
}

func TestMarkdownGenerate(t *testing.T) {
	out, err := NewMarkdownGenerator().Generate(sampleResult(), sampleMeta())
	require.NoError(t, err)

	assert.Contains(t, out, "# Veridian Audit Report")
	assert.Contains(t, out, "**Project**: TestVault")
	assert.Contains(t, out, "**Protocol Type**: VAULT")
	assert.Contains(t, out, "**AI Provider**: DeepSeek (deepseek-chat)")
	assert.Contains(t, out, "**Duration**: 1m35s")
	assert.Contains(t, out, "Single-asset vault with share accounting.")

	assert.Contains(t, out, "- **Contracts Parsed**: 4")
	assert.Contains(t, out, "- **Contracts Deep-Analyzed**: 2")
	assert.Contains(t, out, "- **Invariants Tracked**: 1")
	assert.Contains(t, out, "- **AI Calls**: 12 (1 failed)")
	assert.Contains(t, out, "- **Findings**: 2")

	assert.Contains(t, out, "🔴 **CRITICAL**: 1")
	assert.Contains(t, out, "🟠 **HIGH**: 1")
	assert.Contains(t, out, "- **[HIGH]** Sum of shares equals totalShares")

	assert.Contains(t, out, "### 1. 🔴 [CRITICAL] Reentrant withdraw drains the vault")
	assert.Contains(t, out, "- **Location**: `contracts/Vault.sol withdraw():14-20`")
	assert.Contains(t, out, "- **Confidence**: 90%")
	assert.Contains(t, out, "- **Detected By**: ai_deep_logic")
	assert.Contains(t, out, "```solidity\nmsg.sender.call{value: amount}(\"\");\n```")
	assert.Contains(t, out, "**Remediation**: Apply checks-effects-interactions.")
	assert.Contains(t, out, "- SWC-107")

	assert.Contains(t, out, "### 2. 🟠 [HIGH] Unprotected price feed")
	assert.Contains(t, out, "- **Location**: `contracts/PriceFeed.sol:7`")

	assert.Contains(t, out, "## Warnings")
	assert.Contains(t, out, "- ⚠️ architecture mapping failed: rate limited")

	assert.NotContains(t, out, "interrupted", "complete runs carry no partial banner")
}

func TestMarkdownGeneratePartial(t *testing.T) {
	meta := sampleMeta()
	meta.Partial = true
	out, err := NewMarkdownGenerator().Generate(sampleResult(), meta)
	require.NoError(t, err)
	assert.Contains(t, out, "> ⚠️ Audit was interrupted.")
}

func TestMarkdownGenerateEmptyRun(t *testing.T) {
	res := &audit.Result{
		Project:   contract.Project{Name: "Empty"},
		StartedAt: time.Now(),
	}
	out, err := NewMarkdownGenerator().Generate(res, Meta{})
	require.NoError(t, err)

	assert.Contains(t, out, "**Protocol Type**: UNKNOWN")
	assert.Contains(t, out, "**AI Provider**: UNKNOWN")
	assert.Contains(t, out, "No findings survived normalization and deduplication.")
	assert.NotContains(t, out, "## Severity Distribution")
	assert.NotContains(t, out, "## Protocol Invariants")
	assert.NotContains(t, out, "## Warnings")
}

func TestMarkdownSnippetAlreadyFenced(t *testing.T) {
	res := sampleResult()
	res.Findings = res.Findings[:1]
	res.Findings[0].CodeSnippet = "```solidity\nalready fenced\n```"

	out, err := NewMarkdownGenerator().Generate(res, sampleMeta())
	require.NoError(t, err)
	assert.Contains(t, out, "```solidity\nalready fenced\n```")
	assert.NotContains(t, out, "```solidity\n```solidity", "no nested fences")
}

func TestJSONGenerate(t *testing.T) {
	out, err := NewJSONGenerator().Generate(sampleResult(), sampleMeta())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "TestVault", doc["project"])
	assert.Equal(t, "VAULT", doc["protocolType"])
	assert.Equal(t, "DeepSeek", doc["provider"])
	assert.Equal(t, float64(12), doc["aiCalls"])
	assert.Equal(t, float64(95), doc["durationSecs"])

	findings, ok := doc["findings"].([]interface{})
	require.True(t, ok)
	assert.Len(t, findings, 2)

	sevs, ok := doc["severities"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), sevs["CRITICAL"])

	_, hasPartial := doc["partial"]
	assert.False(t, hasPartial, "partial omitted for complete runs")
}

func TestSanitizeFilenameComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TestVault", "TestVault"},
		{"My Project v2", "My_Project_v2"},
		{"weird/../../path", "weird_.._.._path"},
		{"  spaced  ", "spaced"},
		{"", "unknown"},
		{"///", "unknown"},
		{"0x1f98431c8AD98523631AE4a59f267346ea31F984", "0x1f98431c8AD98523631AE4a59f267346ea31F984"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilenameComponent(tt.in), "in=%q", tt.in)
	}
}

func TestFileStorageSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	fs := NewFileStorage(dir)

	path, err := fs.Save("audit_x_1.md", "# hello\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audit_x_1.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(data))

	// no temp litter left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReporterGenerateAndSave(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(NewFileStorage(dir))

	mdPath, err := r.GenerateAndSave(sampleResult(), sampleMeta())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(mdPath, ".md"))
	assert.Contains(t, filepath.Base(mdPath), "audit_TestVault_")

	jsonPath := strings.TrimSuffix(mdPath, ".md") + ".json"
	_, err = os.Stat(jsonPath)
	require.NoError(t, err, "the JSON artifact sits beside the markdown report")

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Veridian Audit Report")
}
