// Package finding defines the canonical vulnerability record produced by the
// audit pipeline, plus normalization of untrusted model output into it and
// cross-phase merging.
package finding

import "strings"

// Category is the closed vulnerability taxonomy. Unrecognized raw values
// coerce to CategoryLogicError.
type Category string

const (
	CategoryReentrancy         Category = "REENTRANCY"
	CategoryAccessControl      Category = "ACCESS_CONTROL"
	CategoryArithmetic         Category = "ARITHMETIC"
	CategoryUncheckedCall      Category = "UNCHECKED_CALL"
	CategoryOracleManipulation Category = "ORACLE_MANIPULATION"
	CategoryFlashLoan          Category = "FLASH_LOAN"
	CategoryFrontRunning       Category = "FRONT_RUNNING"
	CategoryDoS                Category = "DOS"
	CategoryCrossContract      Category = "CROSS_CONTRACT"
	CategoryLogicError         Category = "LOGIC_ERROR"
)

// Severity is the closed impact scale. Unrecognized raw values coerce to
// SeverityMedium.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Detection methods distinguish a localized bug from a multi-contract attack path.
const (
	MethodDeepLogic     = "ai_deep_logic"
	MethodCrossContract = "ai_cross_contract"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Rank orders severities for sorting, most severe first (CRITICAL=0).
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityMedium]
}

type Location struct {
	FilePath     string `json:"filePath"`
	FunctionName string `json:"functionName,omitempty"`
	StartLine    int    `json:"startLine"`
	EndLine      int    `json:"endLine"`
}

// Finding is one reported vulnerability or attack path. Immutable once built.
type Finding struct {
	ID              string   `json:"id"`
	Category        Category `json:"category"`
	Severity        Severity `json:"severity"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Location        Location `json:"location"`
	DetectionMethod string   `json:"detectionMethod"`
	Confidence      float64  `json:"confidence"`
	CodeSnippet     string   `json:"codeSnippet,omitempty"`
	Remediation     string   `json:"remediation,omitempty"`
	References      []string `json:"references,omitempty"`
}

var categories = map[Category]bool{
	CategoryReentrancy:         true,
	CategoryAccessControl:      true,
	CategoryArithmetic:         true,
	CategoryUncheckedCall:      true,
	CategoryOracleManipulation: true,
	CategoryFlashLoan:          true,
	CategoryFrontRunning:       true,
	CategoryDoS:                true,
	CategoryCrossContract:      true,
	CategoryLogicError:         true,
}

// categoryAliases maps lowercase keywords found in free-text model output to
// the closed set. Checked in order after an exact-name miss.
var categoryAliases = []struct {
	keyword  string
	category Category
}{
	{"reentr", CategoryReentrancy},
	{"access", CategoryAccessControl},
	{"auth", CategoryAccessControl},
	{"permission", CategoryAccessControl},
	{"privilege", CategoryAccessControl},
	{"overflow", CategoryArithmetic},
	{"underflow", CategoryArithmetic},
	{"arithmetic", CategoryArithmetic},
	{"precision", CategoryArithmetic},
	{"rounding", CategoryArithmetic},
	{"unchecked", CategoryUncheckedCall},
	{"return value", CategoryUncheckedCall},
	{"oracle", CategoryOracleManipulation},
	{"price manipul", CategoryOracleManipulation},
	{"flash", CategoryFlashLoan},
	{"front", CategoryFrontRunning},
	{"sandwich", CategoryFrontRunning},
	{"mev", CategoryFrontRunning},
	{"denial", CategoryDoS},
	{"dos", CategoryDoS},
	{"gas limit", CategoryDoS},
	{"cross", CategoryCrossContract},
	{"composab", CategoryCrossContract},
	{"attack path", CategoryCrossContract},
	{"logic", CategoryLogicError},
	{"accounting", CategoryLogicError},
	{"validation", CategoryLogicError},
}

// ParseCategory maps an arbitrary raw category string to the closed set.
func ParseCategory(raw string) Category {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	if categories[Category(norm)] {
		return Category(norm)
	}
	lower := strings.ToLower(raw)
	for _, alias := range categoryAliases {
		if strings.Contains(lower, alias.keyword) {
			return alias.category
		}
	}
	return CategoryLogicError
}

// ParseSeverity clamps an arbitrary raw severity string to the closed scale.
func ParseSeverity(raw string) Severity {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(upper, "CRIT"):
		return SeverityCritical
	case strings.Contains(upper, "HIGH"):
		return SeverityHigh
	case strings.Contains(upper, "MED"):
		return SeverityMedium
	case strings.Contains(upper, "LOW"):
		return SeverityLow
	case strings.Contains(upper, "INFO"), strings.Contains(upper, "NOTE"):
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// CountBySeverity tallies findings for summary output.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, len(severityRank))
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
