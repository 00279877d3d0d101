package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProtocolType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"LENDING", "LENDING"},
		{"lending", "LENDING"},
		{"  dex ", "DEX"},
		{"AMM", "DEX"},
		{"swap", "DEX"},
		{"yield", "VAULT"},
		{"CDP", "LENDING"},
		{"farming", "STAKING"},
		{"", "OTHER"},
		{"GAMBLING_PROTOCOL", "OTHER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeProtocolType(tt.raw), "raw=%q", tt.raw)
	}
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"lending.md":       "# Lending patterns\nliquidation threshold bypass",
		"cross_protocol.md": "# Cross protocol\noracle sandwich",
		"economic.md":       "# Economic\nincentive drift",
		"techniques.md":     "# Techniques\ncheck callback ordering",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	l := NewLoader(dir)
	b := l.Load("lending")
	require.NotNil(t, b)
	assert.Contains(t, b.ProtocolPatterns, "liquidation threshold bypass")
	assert.Contains(t, b.CrossProtocolRisks, "oracle sandwich")
	assert.Contains(t, b.EconomicRisks, "incentive drift")
	assert.Contains(t, b.AuditingTechniques, "check callback ordering")
}

func TestLoadMemoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dex.md")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	l := NewLoader(dir)
	first := l.Load("DEX")
	assert.Contains(t, first.ProtocolPatterns, "original")

	// rewriting the file must not change the cached bundle
	require.NoError(t, os.WriteFile(path, []byte("rewritten"), 0644))
	second := l.Load("DEX")
	assert.Same(t, first, second)
	assert.Contains(t, second.ProtocolPatterns, "original")
}

func TestLoadUnknownTypeNeverNil(t *testing.T) {
	l := NewLoader(t.TempDir())
	b := l.Load("SOMETHING_NOVEL")
	require.NotNil(t, b)
	assert.NotEmpty(t, b.ProtocolPatterns, "built-in fallback text fills a missing corpus")
	assert.NotEmpty(t, b.CrossProtocolRisks)
	assert.NotEmpty(t, b.EconomicRisks)
	assert.NotEmpty(t, b.AuditingTechniques)
}

func TestLoadFallsBackToOtherFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.md"), []byte("universal patterns"), 0644))

	l := NewLoader(dir)
	b := l.Load("VAULT") // vault.md absent, other.md present
	assert.Contains(t, b.ProtocolPatterns, "universal patterns")
}

func TestFilterCrossContractLines(t *testing.T) {
	text := strings.Join([]string{
		"- Check reentrancy guards on state-changing paths",
		"- Validate arithmetic rounding direction",
		"- Trace cross-contract call ordering",
		"- Review flash loan entry points",
		"- Confirm event emission",
		"- Audit callback handlers",
	}, "\n")

	lines := FilterCrossContractLines(text, 10)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "reentrancy")
	assert.Contains(t, lines[1], "cross-contract")
	assert.Contains(t, lines[2], "flash loan")
	assert.Contains(t, lines[3], "callback")

	capped := FilterCrossContractLines(text, 2)
	assert.Len(t, capped, 2)
}

func TestTruncate(t *testing.T) {
	short := "fits entirely"
	assert.Equal(t, short, Truncate(short, 100))

	long := strings.Repeat("0123456789\n", 30) // 330 chars
	out := Truncate(long, 100)
	assert.Less(t, len(out), len(long))
	assert.Contains(t, out, "(truncated at 100 chars)")
	// cut lands on a line boundary
	body := out[:strings.Index(out, "\n... (truncated")]
	assert.True(t, strings.HasSuffix(body, "0123456789"))
}

func TestInvariantTemplates(t *testing.T) {
	lending := InvariantTemplates("LENDING")
	assert.NotEmpty(t, lending)
	for _, inv := range lending {
		assert.NotEmpty(t, inv)
	}

	unknown := InvariantTemplates("totally unknown")
	assert.Equal(t, InvariantTemplates("OTHER"), unknown)

	alias := InvariantTemplates("amm")
	assert.Equal(t, InvariantTemplates("DEX"), alias)
}
