// Builtin tool execution with per-attempt deadlines and retries.
//
// Information Hiding:
// - Deadline applied to each attempt
// - Which failures earn another attempt
// - Backoff schedule between attempts

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the executor does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Executor runs builtin tools. MCP tools are bounded by the gateway instead,
// since their servers keep their own retry policy.
type Executor struct {
	config  ToolConfig
	backoff func(attempt uint32) time.Duration
}

// NewExecutor creates an executor; zero config fields take the defaults.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config.withDefaults(), backoff: exponentialBackoff}
}

// Execute runs tool until it succeeds, fails permanently or runs out of
// attempts. Exhausted attempts come back as a failed result naming the tool;
// only cancellation of ctx is returned as an error.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	name := tool.Metadata().Name
	var lastErr error

	for attempt := uint32(0); attempt < e.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		out := e.attempt(ctx, tool, args)
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		if out.result != nil {
			return *out.result, nil
		}
		if IsPermanent(out.err) {
			return FailureResult(out.err), nil
		}
		lastErr = out.err
	}

	return FailureResultf("tool '%s' failed after %d attempts: %v", name, e.config.MaxAttempts, lastErr), nil
}

// outcome is one attempt: a final result, or an error worth judging.
type outcome struct {
	result *ToolResult
	err    error
}

func (e *Executor) attempt(ctx context.Context, tool Tool, args json.RawMessage) outcome {
	ctx, cancel := context.WithTimeout(ctx, e.config.AttemptTimeout)
	defer cancel()

	result, err := tool.Execute(ctx, args)
	if err == nil && result.Success() {
		return outcome{result: &result}
	}
	if err == nil {
		err = result.Error
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("attempt timed out after %s: %w", e.config.AttemptTimeout, err)
	}
	return outcome{err: err}
}

func exponentialBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)
	if attempt > 6 {
		return maxDelay
	}
	delay := baseDelay << attempt
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
