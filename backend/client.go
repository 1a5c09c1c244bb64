package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the per-request timeout for vendor HTTP calls.
	DefaultTimeout = 5 * time.Minute

	// maxErrorBody caps how much of an error response body is read back
	// into error messages.
	maxErrorBody = 8 * 1024
)

// Client provides the shared HTTP plumbing for vendor adapters:
// credential checks, JSON POSTs, error mapping, and SSE scanning.
// Vendor adapters embed it and supply their own wire formats.
type Client struct {
	descriptor Descriptor
	apiKey     string
	baseURL    string
	http       *http.Client
}

// NewClient creates the shared adapter base. An empty apiKey leaves the
// adapter registered but unavailable rather than failing construction.
func NewClient(d Descriptor, apiKey, baseURL string, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Client{
		descriptor: d,
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return c.descriptor.ID }

// Descriptor returns the backend's immutable description.
func (c *Client) Descriptor() Descriptor { return c.descriptor }

// EstimateCost applies the descriptor's pricing table.
func (c *Client) EstimateCost(inputTokens, outputTokens int) float64 {
	return c.descriptor.EstimateCost(inputTokens, outputTokens)
}

// Available reports whether a credential was resolved at construction.
func (c *Client) Available() bool { return c.apiKey != "" }

// APIKey returns the resolved credential.
func (c *Client) APIKey() string { return c.apiKey }

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Unconfigured returns the error for a call attempted without
// credentials.
func (c *Client) Unconfigured() error {
	return &Error{
		Kind:    KindUnconfigured,
		Backend: c.descriptor.ID,
		Message: "missing API credential",
	}
}

// PostJSON sends payload to path with the given headers and returns the
// response. Non-2xx statuses and transport failures are mapped through
// WrapErr; the caller owns closing the body on success.
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Backend: c.descriptor.ID, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Backend: c.descriptor.ID, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	slog.Debug("Backend request", "backend", c.descriptor.ID, "path", path, "bytes", len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapErr(c.descriptor.ID, ctx.Err())
		}
		return nil, WrapErr(c.descriptor.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &Error{
			Kind:    KindUpstream,
			Backend: c.descriptor.ID,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	return resp, nil
}

// SSEEvent is one server-sent event from a vendor stream.
type SSEEvent struct {
	Event string
	Data  string
}

// ScanSSE reads server-sent events from r and invokes fn for each data
// line. Vendors differ in whether they send event: lines; fn receives
// an empty Event for bare data streams. Scanning stops when fn returns
// a non-nil error or the stream ends.
func ScanSSE(r io.Reader, fn func(ev SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if err := fn(SSEEvent{Event: event, Data: data}); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// errStopScan signals deliberate early termination of an SSE scan.
var errStopScan = fmt.Errorf("stop scan")

// StopScan is returned by ScanSSE callbacks to end the scan cleanly.
func StopScan() error { return errStopScan }

// IsStopScan reports whether err is the deliberate scan terminator.
func IsStopScan(err error) bool { return err == errStopScan }
