// System prompt composition from a role file.
//
// The file layout is:
//
//	roles:
//	  assistant: "You are ..."
//	tools:
//	  mcp_tools: "You can call tools ..."
//	format:
//	  English: "Answer in plain spoken sentences ..."
//
// A composed prompt is the role, the tool description and the format
// description joined by newlines.

package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolsPromptKey is the tools entry included in every composed prompt.
const ToolsPromptKey = "mcp_tools"

// Prompts holds the sections of a role file.
type Prompts struct {
	Roles  map[string]string `yaml:"roles"`
	Tools  map[string]string `yaml:"tools"`
	Format map[string]string `yaml:"format"`
}

// LoadPrompts reads a role file.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var prompts Prompts
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return &prompts, nil
}

// Compose builds the system prompt for role. The role must exist; the tool
// and format sections are optional. An empty format skips the format section.
func (p *Prompts) Compose(role, format string) (string, error) {
	roleText, ok := p.Roles[role]
	if !ok {
		return "", fmt.Errorf("unknown system role %q", role)
	}

	parts := []string{strings.TrimSpace(roleText)}
	if tools := strings.TrimSpace(p.Tools[ToolsPromptKey]); tools != "" {
		parts = append(parts, tools)
	}
	if format != "" {
		formatText, ok := p.Format[format]
		if !ok {
			return "", fmt.Errorf("unknown response format %q", format)
		}
		parts = append(parts, strings.TrimSpace(formatText))
	}
	return strings.Join(parts, "\n"), nil
}
