package knowledge

// Built-in reference text used when the materialized knowledge packs are
// missing. Deliberately protocol-agnostic.

const fallbackPatterns = `# Universal vulnerability patterns
- Reentrancy: external calls before state updates let an attacker re-enter and drain balances.
- Access control: missing or wrong modifier on privileged functions (initialize, upgrade, setOwner, pause).
- Unchecked external calls: ignoring return values of call/send/transferFrom leaves failures undetected.
- Arithmetic: precision loss from divide-before-multiply, rounding direction favoring the caller, unchecked casts.
- Input validation: missing zero-address, zero-amount or bounds checks on user-supplied parameters.
- State machine: operations valid only in one lifecycle phase callable in another (deposit after close, claim before settle).
- Signature replay: missing nonce or chain-id in signed messages.
- Storage collision: upgradeable proxies with shifted storage layout between versions.`

const fallbackCrossProtocol = `# Cross-protocol interaction risks
- Read-only reentrancy: a view function observed mid-state-change by an integrating protocol.
- Hook-based reentrancy: ERC777/ERC721 callbacks re-entering before accounting completes.
- Composability drift: integrated protocol changes share price or fee semantics between calls.
- Cross-contract accounting: two contracts tracking the same balance independently and diverging.
- Flash-loan amplification: any price or quorum read in the same transaction as a large borrow.`

const fallbackEconomic = `# Economic attack patterns
- Oracle manipulation: spot-price reads from a single AMM pool moved within one transaction.
- Donation attacks: inflating a vault share price by direct token transfer before first deposit.
- Sandwich exposure: state-changing operations pricing off manipulable reserves.
- Incentive gaming: reward accrual windows exploitable by deposit-claim-withdraw cycling.
- Liquidation abuse: self-liquidation or toxic-liquidation spirals when close factors are misconfigured.`

const fallbackTechniques = `# Auditing techniques
- Trace every external call: what reenters, what fails silently, what returns attacker-controlled data.
- Check effects ordering around transfers and callbacks (reentrancy windows).
- Compare accounting invariants before and after each flash-capable flow.
- Enumerate privileged roles and verify each privileged path is gated.
- Follow value flows across contracts: mint/burn pairs, escrow in/out, fee skims.
- Flag any cross-contract read of mutable state used for pricing or authorization.`
