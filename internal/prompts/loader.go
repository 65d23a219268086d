// Package prompts loads and renders the agent's prompt templates. Rendering
// is pure text substitution; the agent loop never sees template syntax.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var promptFS embed.FS

// Template names shipped with the binary.
const (
	TemplateSystem      = "system"
	TemplateInstruction = "instruction"
	TemplateObservation = "observation"
	TemplateFormatError = "format_error"
)

// Loader holds parsed prompt templates keyed by name.
type Loader struct {
	templates map[string]string
}

// NewLoader reads every embedded template. Custom templates can override the
// embedded ones by name.
func NewLoader(overrides map[string]string) (*Loader, error) {
	loader := &Loader{templates: make(map[string]string)}

	entries, err := promptFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read prompts directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", entry.Name(), err)
		}
		loader.templates[strings.TrimSuffix(entry.Name(), ".md")] = string(content)
	}

	for name, content := range overrides {
		if content != "" {
			loader.templates[name] = content
		}
	}

	return loader, nil
}

// Render substitutes {{key}} placeholders with values from variables.
func (l *Loader) Render(name string, variables map[string]string) (string, error) {
	content, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template '%s' not found", name)
	}

	for key, value := range variables {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}

	return strings.TrimSpace(content), nil
}

// Names returns the available template names.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	return names
}
