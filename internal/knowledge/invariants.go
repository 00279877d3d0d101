package knowledge

// Invariant templates keyed by protocol type. Static grounding text for the
// invariant-identification phase, independent of any inference output.
var invariantTemplates = map[string][]string{
	"LENDING": {
		"Total borrows never exceed total supplied collateral value times the collateral factor.",
		"A position can only be liquidated when its health factor is below 1.",
		"Interest accrual is monotonic: borrow index never decreases.",
		"Repaying a loan never increases the borrower's debt.",
		"Protocol reserves only grow except through governed withdrawal.",
	},
	"DEX": {
		"The pool invariant (e.g. x*y=k) never decreases across a swap, net of fees.",
		"LP token total supply tracks pool share: mint/burn proportional to reserves added/removed.",
		"Swap output is bounded by the reserve of the output token.",
		"Fees accrue to the pool or designated collector, never to arbitrary callers.",
		"Reserve accounting matches actual token balances after every operation.",
	},
	"VAULT": {
		"Share price (assets per share) never decreases from deposits or withdrawals alone.",
		"Total assets equals the sum of idle balance and deployed strategy balances.",
		"A user's redeemable assets never exceed their share of total assets.",
		"First depositor cannot be diluted nor can they inflate share price for later depositors.",
		"Withdrawals never pull more from strategies than the requested amount plus tolerance.",
	},
	"STAKING": {
		"Total staked balance equals the sum of all individual stakes.",
		"Rewards distributed never exceed rewards funded.",
		"Unstaking returns at most the staked principal plus earned rewards.",
		"Reward rate changes only through authorized configuration paths.",
		"No account can claim the same reward period twice.",
	},
	"OTHER": {
		"Token balances tracked internally match actual token balances held.",
		"The sum of all user balances equals the tracked total.",
		"Privileged state transitions are reachable only by authorized roles.",
		"No operation mints value without a corresponding deposit, fee or authorized issuance.",
		"Paused state blocks all value-moving operations.",
	},
}

// InvariantTemplates returns the canned invariants for a protocol type,
// falling back to the universal set.
func InvariantTemplates(protocolType string) []string {
	key := NormalizeProtocolType(protocolType)
	if templates, ok := invariantTemplates[key]; ok {
		return templates
	}
	return invariantTemplates[fallbackType]
}
