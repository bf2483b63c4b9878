// MCP server configuration file support.
//
// Supports Anthropic-style MCP configuration format:
//
//	{
//	  "mcpServers": {
//	    "weather": {
//	      "command": "uvx",
//	      "args": ["mcp-weather"],
//	      "env": {"WEATHER_API_KEY": "..."}
//	    }
//	  }
//	}
//
// The same ServerConfig is embedded under mcp_servers in the YAML settings.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents a single MCP server configuration.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for name, server := range config.MCPServers {
		if err := ValidateServer(name, server); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

// String renders the command line of a server, for logs.
func (s ServerConfig) String() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// ValidateServer checks a server entry. Names become tool prefixes, so they
// must not contain the underscore separator.
func ValidateServer(name string, server ServerConfig) error {
	if name == "" || strings.Contains(name, "_") {
		return fmt.Errorf("invalid MCP server name %q: must be non-empty without underscores", name)
	}
	if server.Command == "" {
		return fmt.Errorf("MCP server %q has no command", name)
	}
	return nil
}
