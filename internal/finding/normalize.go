package finding

import (
	"fmt"
	"strings"
	"time"
)

// RawFinding is the wire shape a phase parses out of model output. Every
// field is untrusted free text until normalized.
type RawFinding struct {
	Category         string   `json:"category"`
	Severity         string   `json:"severity"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Contract         string   `json:"contract"`
	FunctionName     string   `json:"functionName"`
	StartLine        int      `json:"startLine"`
	EndLine          int      `json:"endLine"`
	Confidence       float64  `json:"confidence"`
	ExpectedBehavior string   `json:"expectedBehavior"`
	ActualBehavior   string   `json:"actualBehavior"`
	ExploitScenario  string   `json:"exploitScenario"`
	AttackPath       []string `json:"attackPath"`
	CodeSnippet      string   `json:"codeSnippet"`
	Remediation      string   `json:"remediation"`
	References       []string `json:"references"`
}

// ID prefixes; the prefix also selects the detection method tag.
const (
	PrefixDeepLogic     = "DL"
	PrefixCrossContract = "CC"
)

var prefixMethods = map[string]string{
	PrefixDeepLogic:     MethodDeepLogic,
	PrefixCrossContract: MethodCrossContract,
}

// Normalize converts one raw model finding into the canonical record.
// Category and severity are coerced to the closed sets, the id is synthesized
// from prefix+timestamp+index for run-local uniqueness, and the optional
// narrative fields are folded into the description in their original order.
func Normalize(raw RawFinding, fallbackPath string, index int, prefix string) Finding {
	desc := make([]string, 0, 4)
	if s := strings.TrimSpace(raw.Description); s != "" {
		desc = append(desc, s)
	}
	if s := strings.TrimSpace(raw.ExpectedBehavior); s != "" {
		desc = append(desc, "Expected behavior: "+s)
	}
	if s := strings.TrimSpace(raw.ActualBehavior); s != "" {
		desc = append(desc, "Actual behavior: "+s)
	}
	if s := strings.TrimSpace(raw.ExploitScenario); s != "" {
		desc = append(desc, "Exploit scenario: "+s)
	}
	if len(raw.AttackPath) > 0 {
		var b strings.Builder
		b.WriteString("Attack path:")
		for i, step := range raw.AttackPath {
			b.WriteString(fmt.Sprintf("\n%d. %s", i+1, strings.TrimSpace(step)))
		}
		desc = append(desc, b.String())
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = "Unspecified issue"
	}

	filePath := strings.TrimSpace(raw.Contract)
	if filePath == "" {
		filePath = fallbackPath
	}

	endLine := raw.EndLine
	if endLine < raw.StartLine {
		endLine = raw.StartLine
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	method, ok := prefixMethods[prefix]
	if !ok {
		method = MethodDeepLogic
	}

	return Finding{
		ID:          fmt.Sprintf("%s-%d-%d", prefix, time.Now().Unix(), index),
		Category:    ParseCategory(raw.Category),
		Severity:    ParseSeverity(raw.Severity),
		Title:       title,
		Description: strings.Join(desc, "\n\n"),
		Location: Location{
			FilePath:     filePath,
			FunctionName: strings.TrimSpace(raw.FunctionName),
			StartLine:    raw.StartLine,
			EndLine:      endLine,
		},
		DetectionMethod: method,
		Confidence:      confidence,
		CodeSnippet:     raw.CodeSnippet,
		Remediation:     raw.Remediation,
		References:      raw.References,
	}
}
