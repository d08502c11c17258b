package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template configures how a PromptInput is rendered into the plain-text
// prompt sent to the oracle, and names the guarantee labels this
// coordinator attaches to every proof record (§3: "guarantee labels").
type Template struct {
	System          string   `yaml:"system"`
	GuaranteeLabels []string `yaml:"guarantee_labels"`
}

// DefaultTemplate is used when no template file is configured.
func DefaultTemplate() *Template {
	return &Template{
		System: "You are an analysis oracle operating over aggregate dataset metadata only.",
		GuaranteeLabels: []string{
			"unanimous-consent",
			"single-use-authorization",
			"input-custody-bound",
		},
	}
}

// LoadTemplate reads a Template from a YAML file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	if t.System == "" {
		t.System = DefaultTemplate().System
	}
	if len(t.GuaranteeLabels) == 0 {
		t.GuaranteeLabels = DefaultTemplate().GuaranteeLabels
	}
	return &t, nil
}

// Render builds the plaintext-row-free prompt string for input (§4.6 step
// 4): the request's description plus each dataset's schema and record
// count. Plaintext rows never appear here.
func (t *Template) Render(input PromptInput) string {
	var b strings.Builder
	b.WriteString(t.System)
	b.WriteString("\n\nRequest: ")
	b.WriteString(input.Title)
	b.WriteString("\nDescription: ")
	b.WriteString(input.Description)
	b.WriteString("\nInputs:\n")
	for _, d := range input.Datasets {
		fmt.Fprintf(&b, "- dataset %s: schema=%q records=%d\n", d.DatasetID, d.Schema, d.RecordCount)
	}
	return b.String()
}
