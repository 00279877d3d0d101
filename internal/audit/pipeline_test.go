package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridian/internal/ai"
	"veridian/internal/contract"
	"veridian/internal/finding"
	"veridian/internal/knowledge"
	"veridian/internal/store"
)

const testVaultSource = `pragma solidity ^0.8.19;

contract Vault {
    mapping(address => uint256) public balances;
    uint256 public totalDeposits;

    function deposit() external payable {
        require(msg.value > 0, "zero deposit");
        balances[msg.sender] += msg.value;
        totalDeposits += msg.value;
    }

    function withdraw(uint256 amount) external {
        require(balances[msg.sender] >= amount, "insufficient");
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok, "transfer failed");
        balances[msg.sender] -= amount;
        totalDeposits -= amount;
    }
}
`

const testOracleSource = `pragma solidity ^0.8.19;

contract PriceFeed {
    uint256 public price;

    function setPrice(uint256 newPrice) external {
        require(newPrice > 0, "zero price");
        price = newPrice;
        emit PriceChanged(newPrice);
    }
}
`

func testContracts() []contract.Contract {
	return []contract.Contract{
		contract.ParseSource("contracts/Vault.sol", testVaultSource),
		contract.ParseSource("contracts/PriceFeed.sol", testOracleSource),
	}
}

func testProject() contract.Project {
	return contract.Project{Name: "TestVault"}
}

// stubCall records one gateway invocation for later assertions.
type stubCall struct {
	system string
	user   string
	opts   ai.Options
}

// stubGateway answers by system prompt. An onCall hook, when set, intercepts
// every invocation first.
type stubGateway struct {
	mu        sync.Mutex
	calls     []stubCall
	responses map[string]string
	errs      map[string]error
	onCall    func(call stubCall, n int) (string, error, bool)
}

func (g *stubGateway) Complete(ctx context.Context, system, user string, opts ai.Options) (string, error) {
	g.mu.Lock()
	call := stubCall{system: system, user: user, opts: opts}
	g.calls = append(g.calls, call)
	n := len(g.calls)
	g.mu.Unlock()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if g.onCall != nil {
		if resp, err, handled := g.onCall(call, n); handled {
			return resp, err
		}
	}
	if err, ok := g.errs[system]; ok {
		return "", err
	}
	if resp, ok := g.responses[system]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no stubbed response for system prompt %q", system)
}

func (g *stubGateway) callsFor(system string) []stubCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []stubCall
	for _, c := range g.calls {
		if c.system == system {
			out = append(out, c)
		}
	}
	return out
}

const protocolResponse = `{
  "protocolType": "vault",
  "summary": "Single-asset ETH vault with per-user balances.",
  "coreContracts": ["Vault"],
  "entryPoints": ["deposit", "withdraw"],
  "valueFlows": ["ETH in via deposit, out via withdraw"],
  "actors": ["depositor"],
  "criticalOperations": ["withdraw", "deposit"],
  "externalDependencies": []
}`

const architectureResponse = `{
  "contractRelationships": ["Vault reads PriceFeed.price"],
  "stateVariables": ["Vault.balances", "Vault.totalDeposits"],
  "accessControl": ["setPrice has no access control"],
  "upgradeability": "none",
  "criticalPaths": [
    {"name": "withdrawal", "steps": ["User calls Vault.withdraw", "Vault sends ETH to user"]}
  ]
}`

const invariantResponse = `{
  "accountingInvariants": [
    {"statement": "Sum of balances equals totalDeposits", "contracts": ["Vault"], "variables": ["balances", "totalDeposits"], "severity": "HIGH"}
  ],
  "accessInvariants": [
    {"statement": "Only authorized callers set the price", "contracts": ["PriceFeed"], "severity": "CRITICAL"}
  ]
}`

const deepLogicResponse = `{
  "findings": [
    {
      "category": "reentrancy",
      "severity": "CRITICAL",
      "title": "Reentrant withdraw drains the vault",
      "description": "External call precedes the balance decrement.",
      "contract": "contracts/Vault.sol",
      "functionName": "withdraw",
      "startLine": 14,
      "endLine": 20,
      "confidence": 0.9,
      "exploitScenario": "Fallback reenters withdraw before balances update.",
      "remediation": "Apply checks-effects-interactions."
    }
  ]
}`

const crossContractResponse = `{
  "findings": [
    {
      "category": "cross-contract",
      "severity": "HIGH",
      "title": "Unprotected price feed drives vault accounting",
      "description": "Anyone can set the price the vault consumes.",
      "contract": "contracts/PriceFeed.sol",
      "functionName": "setPrice",
      "startLine": 7,
      "confidence": 0.7
    }
  ]
}`

func healthyGateway() *stubGateway {
	return &stubGateway{responses: map[string]string{
		protocolSystem:      protocolResponse,
		architectureSystem:  architectureResponse,
		invariantSystem:     invariantResponse,
		deepLogicSystem:     deepLogicResponse,
		crossContractSystem: crossContractResponse,
	}}
}

func newTestPipeline(t *testing.T, g Gateway) *Pipeline {
	t.Helper()
	return NewPipeline(g, knowledge.NewLoader(t.TempDir()), Config{})
}

func TestRunHappyPath(t *testing.T) {
	g := healthyGateway()
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "VAULT", res.Understanding.ProtocolType, "protocol type is uppercased")
	assert.Equal(t, 2, res.ContractCount)
	assert.Equal(t, 2, res.SelectedCount)
	assert.Empty(t, res.Warnings)
	assert.NotZero(t, res.Duration)

	require.Len(t, res.Findings, 2)
	// merged order: CRITICAL before HIGH
	assert.Equal(t, finding.SeverityCritical, res.Findings[0].Severity)
	assert.Equal(t, "Reentrant withdraw drains the vault", res.Findings[0].Title)
	assert.Greater(t, res.Findings[0].Confidence, 0.5)
	assert.Equal(t, finding.MethodDeepLogic, res.Findings[0].DetectionMethod)
	assert.Equal(t, finding.MethodCrossContract, res.Findings[1].DetectionMethod)

	// IDs are unique and carry the phase prefix
	assert.True(t, strings.HasPrefix(res.Findings[0].ID, "DL-"))
	assert.True(t, strings.HasPrefix(res.Findings[1].ID, "CC-"))
	assert.NotEqual(t, res.Findings[0].ID, res.Findings[1].ID)

	// one call per phase, none repeated
	for _, system := range []string{protocolSystem, architectureSystem, invariantSystem, crossContractSystem} {
		assert.Len(t, g.callsFor(system), 1)
	}
}

func TestRunNoContracts(t *testing.T) {
	p := newTestPipeline(t, healthyGateway())
	res, err := p.Run(context.Background(), testProject(), nil)
	assert.Nil(t, res)
	assert.Error(t, err)
}

func TestRunProtocolFailureIsFatal(t *testing.T) {
	g := healthyGateway()
	g.errs = map[string]error{protocolSystem: errors.New("model unavailable")}
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol understanding failed")

	// nothing downstream ran
	assert.Empty(t, g.callsFor(architectureSystem))
	assert.Empty(t, g.callsFor(deepLogicSystem))
}

func TestRunProtocolGarbageIsFatal(t *testing.T) {
	g := healthyGateway()
	g.responses[protocolSystem] = "I am unable to classify this protocol, apologies."
	g.responses[reformatSystem] = "Still not JSON, sorry about that."
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUndecodable)
	// exactly one reformat attempt before giving up
	assert.Len(t, g.callsFor(reformatSystem), 1)
}

func TestRunArchitectureDegrades(t *testing.T) {
	g := healthyGateway()
	g.errs = map[string]error{architectureSystem: errors.New("rate limited to death")}
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err, "a degraded phase never fails the run")
	require.NotNil(t, res)

	assert.Equal(t, ArchitectureMap{}, res.Architecture, "degraded phase yields the zero value")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "architecture mapping failed")

	// later phases still produced findings
	assert.Len(t, res.Findings, 2)
}

func TestRunInvariantDegrades(t *testing.T) {
	g := healthyGateway()
	g.responses[invariantSystem] = "no json from me today"
	g.responses[reformatSystem] = "still prose"
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Invariants.Empty())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "invariant identification failed")
	assert.Len(t, res.Findings, 2)
}

func TestRunDeepLogicBatchFailureIsContained(t *testing.T) {
	g := healthyGateway()
	g.errs = map[string]error{deepLogicSystem: errors.New("boom")}
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err, "batch failures are contained, not fatal")
	require.NotNil(t, res)

	// only the cross-contract finding survives
	require.Len(t, res.Findings, 1)
	assert.Equal(t, finding.MethodCrossContract, res.Findings[0].DetectionMethod)
	assert.Empty(t, res.Warnings, "skipped batches degrade silently, not as run warnings")
}

func TestRunDeepLogicGarbageThenReformat(t *testing.T) {
	g := healthyGateway()
	g.responses[deepLogicSystem] = "Let me think about these functions step by step..."
	g.responses[reformatSystem] = deepLogicResponse
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	require.Len(t, res.Findings, 2, "reformat pass recovered the batch")
}

func TestRunCrossContractDegrades(t *testing.T) {
	g := healthyGateway()
	g.errs = map[string]error{crossContractSystem: errors.New("overloaded")}
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, finding.MethodDeepLogic, res.Findings[0].DetectionMethod)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "cross-contract analysis failed")
}

func TestRunBareArrayFindingsAccepted(t *testing.T) {
	g := healthyGateway()
	// a model ignoring the envelope instruction and emitting the array directly
	g.responses[deepLogicSystem] = `[
	  {"category": "arithmetic", "severity": "MEDIUM", "title": "Rounding favors withdrawer",
	   "contract": "contracts/Vault.sol", "functionName": "withdraw", "startLine": 14, "confidence": 0.55}
	]`
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)
}

func TestRunMergesDuplicateAcrossPhases(t *testing.T) {
	g := healthyGateway()
	// cross-contract reports the same issue at the same location with higher confidence
	g.responses[crossContractSystem] = `{"findings": [
	  {"category": "reentrancy", "severity": "CRITICAL", "title": "Reentrant withdraw drains the vault",
	   "contract": "contracts/Vault.sol", "functionName": "withdraw", "startLine": 14, "endLine": 20, "confidence": 0.95}
	]}`
	p := newTestPipeline(t, g)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	require.Len(t, res.Findings, 1, "identical location and title deduplicate")
	assert.Equal(t, 0.95, res.Findings[0].Confidence, "higher confidence survives")
	assert.Equal(t, finding.MethodCrossContract, res.Findings[0].DetectionMethod)
}

func TestRunCancellationDuringDeepLogic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := healthyGateway()
	g.onCall = func(call stubCall, n int) (string, error, bool) {
		if call.system == deepLogicSystem {
			cancel()
			return "", context.Canceled, true
		}
		return "", nil, false
	}
	p := newTestPipeline(t, g)

	res, err := p.Run(ctx, testProject(), testContracts())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res, "partial result survives cancellation")

	assert.Equal(t, "VAULT", res.Understanding.ProtocolType)
	assert.Contains(t, res.Warnings, "run canceled during deep logic analysis")
	assert.Empty(t, g.callsFor(crossContractSystem), "no phase runs after cancellation")
}

func TestRunCancellationDuringArchitecture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := healthyGateway()
	g.onCall = func(call stubCall, n int) (string, error, bool) {
		if call.system == architectureSystem {
			cancel()
			return "", context.Canceled, true
		}
		return "", nil, false
	}
	p := newTestPipeline(t, g)

	res, err := p.Run(ctx, testProject(), testContracts())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, "VAULT", res.Understanding.ProtocolType, "phase 1 output is preserved")
	assert.Empty(t, res.Findings)
}

type stubHistory struct {
	records []store.FindingRecord
	err     error
	queries []string
}

func (h *stubHistory) SearchSimilar(ctx context.Context, text string, limit int) ([]store.FindingRecord, error) {
	h.queries = append(h.queries, text)
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.records) {
		return h.records[:limit], nil
	}
	return h.records, nil
}

func TestRunHistoryEnrichesDeepLogicPrompt(t *testing.T) {
	g := healthyGateway()
	h := &stubHistory{records: []store.FindingRecord{
		{Severity: "HIGH", Title: "Historic reward drain via claim loop", FilePath: "old/Rewards.sol"},
	}}
	p := newTestPipeline(t, g).WithHistory(h)

	_, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)

	require.NotEmpty(t, h.queries, "history consulted for deep logic batches")
	deepCalls := g.callsFor(deepLogicSystem)
	require.NotEmpty(t, deepCalls)
	assert.Contains(t, deepCalls[0].user, "Historic reward drain via claim loop")
}

func TestRunHistoryFailureIsSilent(t *testing.T) {
	g := healthyGateway()
	h := &stubHistory{err: errors.New("db on fire")}
	p := newTestPipeline(t, g).WithHistory(h)

	res, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)
	assert.Len(t, res.Findings, 2)
	assert.Empty(t, res.Warnings)
}

func TestRunPhaseCallOptions(t *testing.T) {
	g := healthyGateway()
	p := newTestPipeline(t, g)

	_, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)

	expect := map[string]ai.Options{
		protocolSystem:      {Temperature: 0.1, MaxTokens: 2048, JSONMode: true},
		architectureSystem:  {Temperature: 0.1, MaxTokens: 2048, JSONMode: true},
		invariantSystem:     {Temperature: 0.2, MaxTokens: 4096, JSONMode: true},
		deepLogicSystem:     {Temperature: 0.2, MaxTokens: 4096, JSONMode: true},
		crossContractSystem: {Temperature: 0.3, MaxTokens: 4096, JSONMode: true},
	}
	for system, want := range expect {
		calls := g.callsFor(system)
		require.NotEmpty(t, calls, "system %q", system)
		assert.Equal(t, want, calls[0].opts, "system %q", system)
	}
}

func TestRunDeepLogicPromptCarriesAccumulatedContext(t *testing.T) {
	g := healthyGateway()
	p := newTestPipeline(t, g)

	_, err := p.Run(context.Background(), testProject(), testContracts())
	require.NoError(t, err)

	deepCalls := g.callsFor(deepLogicSystem)
	require.NotEmpty(t, deepCalls)
	user := deepCalls[0].user
	assert.Contains(t, user, "Single-asset ETH vault", "phase 1 summary rides along")
	assert.Contains(t, user, "Sum of balances equals totalDeposits", "phase 3 invariants ride along")
	assert.Contains(t, user, "function withdraw", "batch functions included")
}
