// Tool whitelist policy.
//
// Information Hiding:
// - YAML layout of the policy file
// - Qualified name parsing ("<namespace>_<tool>")

package tools

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMalformedToolName is returned for a qualified name without an underscore.
	ErrMalformedToolName = errors.New("malformed tool name")
	// ErrToolNotAllowed is returned when the model requests a tool the policy rejects.
	ErrToolNotAllowed = errors.New("tool not allowed")
)

// NamespacePolicy is the rule for one tool namespace.
type NamespacePolicy struct {
	Enabled  bool     `yaml:"enabled"`
	AllowAll bool     `yaml:"allow_all"`
	Tools    []string `yaml:"tools"`
}

type namespaceRule struct {
	enabled  bool
	allowAll bool
	tools    map[string]struct{}
}

// Whitelist decides which qualified tool names are exposed. It is immutable
// after construction. A nil *Whitelist allows everything.
type Whitelist struct {
	namespaces map[string]namespaceRule
}

type whitelistFile struct {
	MCPServers map[string]NamespacePolicy `yaml:"mcp_servers"`
}

// NewWhitelist builds a policy from per-namespace rules.
func NewWhitelist(policies map[string]NamespacePolicy) *Whitelist {
	w := &Whitelist{namespaces: make(map[string]namespaceRule, len(policies))}
	for ns, p := range policies {
		rule := namespaceRule{
			enabled:  p.Enabled,
			allowAll: p.AllowAll,
			tools:    make(map[string]struct{}, len(p.Tools)),
		}
		for _, name := range p.Tools {
			rule.tools[name] = struct{}{}
		}
		w.namespaces[ns] = rule
	}
	return w
}

// ParseWhitelist parses the YAML policy format:
//
//	mcp_servers:
//	  calc:
//	    enabled: true
//	    allow_all: false
//	    tools: [add]
func ParseWhitelist(data []byte) (*Whitelist, error) {
	var f whitelistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse whitelist: %w", err)
	}
	return NewWhitelist(f.MCPServers), nil
}

// LoadWhitelist reads a policy file. An empty path or a missing file means
// no policy, returned as a nil *Whitelist.
func LoadWhitelist(path string) (*Whitelist, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	return ParseWhitelist(data)
}

// SplitToolName splits a qualified name on its first underscore.
func SplitToolName(name string) (namespace, short string, err error) {
	namespace, short, ok := strings.Cut(name, "_")
	if !ok {
		return "", "", fmt.Errorf("%w: %q has no namespace", ErrMalformedToolName, name)
	}
	return namespace, short, nil
}

// Allows reports whether the qualified tool name passes the policy.
func (w *Whitelist) Allows(name string) (bool, error) {
	if w == nil {
		return true, nil
	}

	namespace, short, err := SplitToolName(name)
	if err != nil {
		return false, err
	}

	rule, ok := w.namespaces[namespace]
	if !ok || !rule.enabled {
		return false, nil
	}
	if rule.allowAll {
		return true, nil
	}
	_, ok = rule.tools[short]
	return ok, nil
}
