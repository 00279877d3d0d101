package contract

import (
	"regexp"
	"strings"
)

// Function is one extracted function-level code block.
type Function struct {
	Name string
	Code string
}

// minRiskBodyLen filters out trivially short bodies before risk matching.
const minRiskBodyLen = 100

var (
	functionDeclRe    = regexp.MustCompile(`^\s*function\s+([A-Za-z_]\w*)\s*\(`)
	constructorDeclRe = regexp.MustCompile(`^\s*(constructor)\s*\(`)
)

// ExtractFunctions splits source into function-level blocks with a
// line-oriented brace-depth scan. This is a lexical heuristic, not a parser:
// brace characters inside string or comment literals are counted like any
// other, which can mis-detect a boundary. Accepted limitation.
func ExtractFunctions(source string) []Function {
	var (
		functions  []Function
		buf        []string
		name       string
		braceDepth int
		hasBrace   bool
		inside     bool
	)

	for _, line := range strings.Split(source, "\n") {
		if !inside {
			m := functionDeclRe.FindStringSubmatch(line)
			if m == nil {
				m = constructorDeclRe.FindStringSubmatch(line)
			}
			if m == nil {
				continue
			}
			inside = true
			name = m[1]
			buf = buf[:0]
			braceDepth = 0
			hasBrace = false
		}

		buf = append(buf, line)
		braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
		if strings.Contains(line, "{") {
			hasBrace = true
		}

		if hasBrace && braceDepth <= 0 {
			functions = append(functions, Function{
				Name: name,
				Code: strings.Join(buf, "\n"),
			})
			inside = false
		}
	}
	return functions
}

// Risk patterns: a function proceeds to deep analysis only when at least one
// matches. The table is deliberately small; precision comes from the model,
// this stage only bounds inference cost.
var riskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.(transfer|transferFrom|safeTransfer|safeTransferFrom|send)\s*\(`),
	regexp.MustCompile(`(?i)\b_?(mint|burn)\w*\s*\(`),
	regexp.MustCompile(`(?i)\b(withdraw|deposit|swap|liquidat|borrow|repay|redeem|claim)\w*`),
	regexp.MustCompile(`\.call\s*[({]|delegatecall|\bpayable\b|msg\.value`),
	regexp.MustCompile(`(\+=|-=|\*=|/=)`),
	regexp.MustCompile(`(if|require|while)\s*\([^)]*(<=|>=|==|!=|<|>)`),
}

var pureMarkerRe = regexp.MustCompile(`\bpure\b`)

// IsHighRisk reports whether a function is worth an inference call.
// Pure functions and bodies under the minimum length never qualify,
// regardless of keyword content.
func IsHighRisk(fn Function) bool {
	header := fn.Code
	if i := strings.Index(header, "{"); i >= 0 {
		header = header[:i]
	}
	if pureMarkerRe.MatchString(header) {
		return false
	}
	if len(fn.Code) < minRiskBodyLen {
		return false
	}
	for _, re := range riskPatterns {
		if re.MatchString(fn.Code) {
			return true
		}
	}
	return false
}

// FilterHighRisk keeps the functions passing IsHighRisk, preserving order.
func FilterHighRisk(functions []Function) []Function {
	var out []Function
	for _, fn := range functions {
		if IsHighRisk(fn) {
			out = append(out, fn)
		}
	}
	return out
}
