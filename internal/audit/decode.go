package audit

import (
	"context"
	"errors"
	"fmt"

	"veridian/internal/ai"
	"veridian/internal/ai/parser"
	"veridian/internal/finding"
	"veridian/internal/logger"
)

var errUndecodable = errors.New("response could not be decoded as JSON")

const reformatSystem = "You are a formatting assistant. Respond with valid JSON only, no commentary."

func buildReformatPrompt(previous string) string {
	return fmt.Sprintf(`Your previous response could not be parsed as JSON. Reproduce its content as a single valid JSON document matching the schema you were given, with no surrounding text or markdown fences.

Previous response:
%s`, previous)
}

// completeObject calls the gateway and decodes the first JSON object in the
// response into target. A response that defies decoding gets one reformat
// pass; if that fails too, errUndecodable is returned and the caller applies
// its phase failure policy.
func (p *Pipeline) completeObject(ctx context.Context, system, user string, opts ai.Options, target interface{}) error {
	text, err := p.gateway.Complete(ctx, system, user, opts)
	if err != nil {
		return err
	}
	if parser.DecodeObject(text, target) {
		return nil
	}

	logger.Warn("Response not parseable as JSON, requesting reformat")
	reformatted, err := p.gateway.Complete(ctx, reformatSystem, buildReformatPrompt(text), opts)
	if err != nil {
		return fmt.Errorf("reformat call failed: %w", err)
	}
	if parser.DecodeObject(reformatted, target) {
		return nil
	}
	return errUndecodable
}

// findingsEnvelope is how the finding phases ask for results: JSON mode
// requires a top-level object, so the array rides inside it.
type findingsEnvelope struct {
	Findings []finding.RawFinding `json:"findings"`
}

// completeFindings is the array-producing variant of completeObject. Bare
// arrays are accepted from models that ignore the envelope instruction.
func (p *Pipeline) completeFindings(ctx context.Context, system, user string, opts ai.Options) ([]finding.RawFinding, error) {
	text, err := p.gateway.Complete(ctx, system, user, opts)
	if err != nil {
		return nil, err
	}
	if raws, ok := decodeFindings(text); ok {
		return raws, nil
	}

	logger.Warn("Findings response not parseable as JSON, requesting reformat")
	reformatted, err := p.gateway.Complete(ctx, reformatSystem, buildReformatPrompt(text), opts)
	if err != nil {
		return nil, fmt.Errorf("reformat call failed: %w", err)
	}
	if raws, ok := decodeFindings(reformatted); ok {
		return raws, nil
	}
	return nil, errUndecodable
}

func decodeFindings(text string) ([]finding.RawFinding, bool) {
	var env findingsEnvelope
	if parser.DecodeObject(text, &env) && env.Findings != nil {
		return env.Findings, true
	}
	var raws []finding.RawFinding
	if parser.DecodeArray(text, &raws) {
		return raws, true
	}
	return nil, false
}
