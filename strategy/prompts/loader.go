package prompts

import (
	"os"
	"path/filepath"

	"veridian/internal/logger"
)

// Phase template names.
const (
	PhaseProtocol      = "protocol"
	PhaseArchitecture  = "architecture"
	PhaseInvariants    = "invariants"
	PhaseDeepLogic     = "deep_logic"
	PhaseCrossContract = "cross_contract"
)

// LoadTemplate returns the template text for a phase, preferring the
// materialized file so operators can tune prompts without rebuilding.
// Falls back to the compiled-in default; never fails.
func LoadTemplate(phase string) string {
	candidates := []string{
		filepath.Join("strategy", "prompts", phase+".tmpl"),
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "strategy", "prompts", phase+".tmpl"))
	}

	for _, path := range candidates {
		if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
			return string(content)
		}
	}

	if builtin, ok := builtinTemplate(phase); ok {
		return builtin
	}
	logger.Warn("No template for phase %q, using generic fallback", phase)
	return genericTemplate
}
