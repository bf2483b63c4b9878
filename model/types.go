// Package model provides domain types shared across packages.
package model

// ToolCall contains metrics about a tool invocation.
// Collected by the tool gateway and reported per turn.
type ToolCall struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}
