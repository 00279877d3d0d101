package prompts

import "embed"

//go:embed *.tmpl
var builtinFS embed.FS

func builtinTemplate(phase string) (string, bool) {
	data, err := builtinFS.ReadFile(phase + ".tmpl")
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

const genericTemplate = `Analyze the following smart contract material and report any
security issues as a JSON array of finding objects.

{{.KnowledgeContext}}

{{.FunctionsCode}}
`
