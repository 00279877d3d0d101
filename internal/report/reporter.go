package report

import (
	"fmt"
	"time"

	"veridian/internal/audit"
)

// Reporter renders an audit result as markdown plus a JSON artifact and
// persists both under the same base name.
type Reporter struct {
	markdown Generator
	json     Generator
	storage  Storage
}

func NewReporter(storage Storage) *Reporter {
	return &Reporter{
		markdown: NewMarkdownGenerator(),
		json:     NewJSONGenerator(),
		storage:  storage,
	}
}

// GenerateAndSave writes both artifacts and returns the markdown path, the
// one users open first.
func (r *Reporter) GenerateAndSave(res *audit.Result, meta Meta) (string, error) {
	base := fmt.Sprintf("audit_%s_%d", sanitizeFilenameComponent(res.Project.Name), time.Now().UnixNano())

	content, err := r.markdown.Generate(res, meta)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}
	mdPath, err := r.storage.Save(base+".md", content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	encoded, err := r.json.Generate(res, meta)
	if err != nil {
		return "", fmt.Errorf("failed to generate JSON artifact: %w", err)
	}
	if _, err := r.storage.Save(base+".json", encoded); err != nil {
		return "", fmt.Errorf("failed to save JSON artifact: %w", err)
	}

	return mdPath, nil
}
