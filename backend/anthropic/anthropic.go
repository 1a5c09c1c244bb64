// Package anthropic implements the backend contract over the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/parleyhq/parley/backend"
)

const (
	// DefaultModel is used when the config names none.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultBaseURL is the Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIKeyEnv is the environment variable holding the credential.
	APIKeyEnv = "ANTHROPIC_API_KEY"

	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2048
)

// Config holds adapter settings. Zero values fall back to defaults; an
// empty APIKey is resolved from the process environment.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// Adapter talks to the Anthropic Messages API.
type Adapter struct {
	backend.Client
	model string
}

// New creates an Anthropic adapter. A missing credential leaves the
// adapter unavailable rather than failing.
func New(cfg Config) *Adapter {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}
	inCost := cfg.InputCostPer1K
	if inCost == 0 {
		inCost = 0.003
	}
	outCost := cfg.OutputCostPer1K
	if outCost == 0 {
		outCost = 0.015
	}

	d := backend.Descriptor{
		ID:              "anthropic",
		DisplayName:     "Claude",
		Model:           model,
		Vendor:          "anthropic",
		InputCostPer1K:  inCost,
		OutputCostPer1K: outCost,
	}
	return &Adapter{
		Client: backend.NewClient(d, apiKey, baseURL, cfg.Timeout),
		model:  model,
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.APIKey(),
		"anthropic-version": apiVersion,
	}
}

// Generate performs a synchronous completion.
func (a *Adapter) Generate(ctx context.Context, messages []backend.Message, opts backend.Options) (*backend.Result, error) {
	if !a.Available() {
		return nil, a.Unconfigured()
	}

	resp, err := a.PostJSON(ctx, "/v1/messages", a.headers(), buildRequest(a.model, messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, backend.WrapErr(a.Name(), err)
	}
	return ParseResponse(&wire), nil
}

// Stream performs an incremental completion over SSE.
func (a *Adapter) Stream(ctx context.Context, messages []backend.Message, opts backend.Options) (<-chan backend.Chunk, error) {
	if !a.Available() {
		return nil, a.Unconfigured()
	}

	resp, err := a.PostJSON(ctx, "/v1/messages", a.headers(), buildRequest(a.model, messages, opts, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan backend.Chunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		parser := NewStreamParser()
		terminal := false

		err := backend.ScanSSE(resp.Body, func(ev backend.SSEEvent) error {
			chunks, perr := parser.Parse(ev.Data)
			if perr != nil {
				return perr
			}
			for _, c := range chunks {
				select {
				case ch <- c:
				case <-ctx.Done():
					return ctx.Err()
				}
				if c.Terminal() {
					terminal = true
					return backend.StopScan()
				}
			}
			return nil
		})

		if terminal {
			return
		}
		if err != nil && !backend.IsStopScan(err) {
			ch <- backend.Chunk{Kind: backend.ChunkError, Err: backend.WrapErr(a.Name(), err)}
			return
		}
		// Stream ended without a message_stop; surface it rather than
		// leaving the caller without a terminal chunk.
		slog.Warn("Anthropic stream ended without terminal event", "backend", a.Name())
		ch <- backend.Chunk{Kind: backend.ChunkDone, Usage: parser.UsageSnapshot()}
	}()

	return ch, nil
}
