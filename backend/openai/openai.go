// Package openai implements the backend contract over the OpenAI Chat
// Completions API.
package openai

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
	DefaultModel = "gpt-4o"

	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com"

	// APIKeyEnv is the environment variable holding the credential.
	APIKeyEnv = "OPENAI_API_KEY"

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

// Adapter talks to the OpenAI Chat Completions API.
type Adapter struct {
	backend.Client
	model string
}

// New creates an OpenAI adapter.
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
		inCost = 0.0025
	}
	outCost := cfg.OutputCostPer1K
	if outCost == 0 {
		outCost = 0.01
	}

	d := backend.Descriptor{
		ID:              "openai",
		DisplayName:     "GPT",
		Model:           model,
		Vendor:          "openai",
		InputCostPer1K:  inCost,
		OutputCostPer1K: outCost,
	}
	return &Adapter{
		Client: backend.NewClient(d, apiKey, baseURL, cfg.Timeout),
		model:  model,
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.APIKey()}
}

// Generate performs a synchronous completion.
func (a *Adapter) Generate(ctx context.Context, messages []backend.Message, opts backend.Options) (*backend.Result, error) {
	if !a.Available() {
		return nil, a.Unconfigured()
	}

	resp, err := a.PostJSON(ctx, "/v1/chat/completions", a.headers(), buildRequest(a.model, messages, opts, false))
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

	resp, err := a.PostJSON(ctx, "/v1/chat/completions", a.headers(), buildRequest(a.model, messages, opts, true))
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
		slog.Warn("OpenAI stream ended without [DONE] marker", "backend", a.Name())
		ch <- backend.Chunk{Kind: backend.ChunkDone, Usage: parser.UsageSnapshot()}
	}()

	return ch, nil
}
