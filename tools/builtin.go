// Builtin tools: small local tools that need no external server.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	calcMin = 1
	calcMax = 100
)

type calcArgs struct {
	A *int `json:"a"`
	B *int `json:"b"`
}

func parseCalcArgs(args json.RawMessage) (int, int, error) {
	var a calcArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return 0, 0, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.A == nil || a.B == nil {
		return 0, 0, fmt.Errorf("both a and b are required")
	}
	for _, v := range []int{*a.A, *a.B} {
		if v < calcMin || v > calcMax {
			return 0, 0, fmt.Errorf("operand %d out of range [%d, %d]", v, calcMin, calcMax)
		}
	}
	return *a.A, *a.B, nil
}

func calcParameters(verb string) []ToolParameter {
	lo, hi := float64(calcMin), float64(calcMax)
	return []ToolParameter{
		{Name: "a", ParamType: "integer", Description: fmt.Sprintf("first number to %s", verb), Required: true, Minimum: &lo, Maximum: &hi},
		{Name: "b", ParamType: "integer", Description: fmt.Sprintf("second number to %s", verb), Required: true, Minimum: &lo, Maximum: &hi},
	}
}

// AddTool adds two integers.
type AddTool struct{}

// NewAddTool creates the calc_add tool.
func NewAddTool() *AddTool { return &AddTool{} }

// Metadata returns the tool metadata.
func (t *AddTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "calc_add",
		Description: "Add two integers between 1 and 100",
		Parameters:  calcParameters("add"),
	}
}

// Validate validates the arguments.
func (t *AddTool) Validate(args json.RawMessage) error {
	_, _, err := parseCalcArgs(args)
	return err
}

// Execute adds the operands.
func (t *AddTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, b, err := parseCalcArgs(args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	return SuccessResult(strconv.Itoa(a + b)), nil
}

// MinusTool subtracts two integers.
type MinusTool struct{}

// NewMinusTool creates the calc_minus tool.
func NewMinusTool() *MinusTool { return &MinusTool{} }

// Metadata returns the tool metadata.
func (t *MinusTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "calc_minus",
		Description: "Subtract the second integer from the first, both between 1 and 100",
		Parameters:  calcParameters("subtract"),
	}
}

// Validate validates the arguments.
func (t *MinusTool) Validate(args json.RawMessage) error {
	_, _, err := parseCalcArgs(args)
	return err
}

// Execute subtracts b from a.
func (t *MinusTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, b, err := parseCalcArgs(args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	return SuccessResult(strconv.Itoa(a - b)), nil
}

// GreetTool returns a greeting.
type GreetTool struct {
	BaseTool
}

// NewGreetTool creates the greet_hello tool.
func NewGreetTool() *GreetTool { return &GreetTool{} }

// Metadata returns the tool metadata.
func (t *GreetTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "greet_hello",
		Description: "Greet someone by name, or the world when no name is given",
		Parameters: []ToolParameter{
			{Name: "name", ParamType: "string", Description: "who to greet", Required: false},
		},
	}
}

// Execute builds the greeting.
func (t *GreetTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a struct {
		Name string `json:"name"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return FailureResult(Permanent(fmt.Errorf("invalid arguments: %w", err))), nil
		}
	}
	if a.Name == "" {
		a.Name = "world"
	}
	return SuccessResult(fmt.Sprintf("Hello, %s!", a.Name)), nil
}
