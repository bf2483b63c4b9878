// Web fetch tool.
//
// Information Hiding:
// - HTTP client implementation details hidden
// - Domain allowlist and response truncation

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultFetchLimit caps the bytes of a response body returned to the model.
const DefaultFetchLimit = 8 * 1024

// FetchTool fetches a URL with GET.
type FetchTool struct {
	client         *http.Client
	timeout        time.Duration
	limit          int64
	allowedDomains []string
}

// NewFetchTool creates a new fetch tool with the given timeout.
func NewFetchTool(timeout time.Duration) *FetchTool {
	return &FetchTool{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
		limit:   DefaultFetchLimit,
	}
}

// WithAllowedDomains sets the allowed domains for requests.
func (t *FetchTool) WithAllowedDomains(domains []string) *FetchTool {
	t.allowedDomains = domains
	return t
}

// WithLimit sets the maximum number of body bytes returned.
func (t *FetchTool) WithLimit(limit int64) *FetchTool {
	t.limit = limit
	return t
}

// Metadata returns the tool metadata.
func (t *FetchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "web_fetch",
		Description: "Fetch the text content of a web page or JSON API with an HTTP GET request",
		Parameters: []ToolParameter{
			{Name: "url", ParamType: "string", Description: "The http or https URL to fetch", Required: true},
		},
	}
}

type fetchArgs struct {
	URL string `json:"url"`
}

// Validate validates the arguments.
func (t *FetchTool) Validate(args json.RawMessage) error {
	var a fetchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("URL must be http or https: %q", a.URL)
	}
	if !t.isDomainAllowed(u.Hostname()) {
		return fmt.Errorf("access to domain in '%s' is not allowed", a.URL)
	}
	return nil
}

// Execute makes the HTTP request.
func (t *FetchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a fetchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(Permanent(fmt.Errorf("invalid arguments: %w", err))), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to create request: %w", err)), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return FailureResultf("request timeout after %s", t.timeout), nil
		}
		return FailureResult(fmt.Errorf("request failed: %w", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.limit+1))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read response body: %w", err)), nil
	}

	text := string(body)
	if int64(len(body)) > t.limit {
		text = string(body[:t.limit]) + "\n[truncated]"
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SuccessResult(fmt.Sprintf("Status: %s\n\n%s", resp.Status, text)), nil
	}

	err = fmt.Errorf("HTTP error: %s", resp.Status)
	if resp.StatusCode < 500 {
		err = Permanent(err)
	}
	return FailureResult(err), nil
}

// isDomainAllowed checks the host against the allowlist.
func (t *FetchTool) isDomainAllowed(host string) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}
	for _, domain := range t.allowedDomains {
		// Exact match or subdomain match
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
