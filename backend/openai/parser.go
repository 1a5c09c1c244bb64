package openai

import (
	"encoding/json"
	"fmt"

	"github.com/parleyhq/parley/backend"
)

// Wire formats for the Chat Completions API.

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiRequest struct {
	Model         string            `json:"model"`
	Messages      []apiMessage      `json:"messages"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	StreamOptions *apiStreamOptions `json:"stream_options,omitempty"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiChoice struct {
	Message      *apiMessage `json:"message,omitempty"`
	Delta        *apiMessage `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   *apiUsage   `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// buildRequest converts the neutral message list into the OpenAI wire
// shape. The system override becomes a leading system message; streams
// request a usage block on the final chunk.
func buildRequest(model string, messages []backend.Message, opts backend.Options, stream bool) *apiRequest {
	req := &apiRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
		Stream:    stream,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}
	if stream {
		req.StreamOptions = &apiStreamOptions{IncludeUsage: true}
	}

	if opts.System != "" {
		req.Messages = append(req.Messages, apiMessage{Role: "system", Content: opts.System})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return req
}

// ParseResponse converts a full Chat Completions response into a
// Result.
func ParseResponse(wire *apiResponse) *backend.Result {
	res := &backend.Result{StopReason: backend.StopComplete}
	if len(wire.Choices) > 0 {
		choice := wire.Choices[0]
		if choice.Message != nil {
			res.Content = choice.Message.Content
		}
		res.StopReason = mapFinishReason(choice.FinishReason)
	}
	if wire.Usage != nil {
		res.Usage = backend.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		}
		if res.Usage.TotalTokens == 0 {
			res.Usage.TotalTokens = res.Usage.InputTokens + res.Usage.OutputTokens
		}
	} else {
		out := backend.EstimateTokens(res.Content)
		res.Usage = backend.Usage{OutputTokens: out, TotalTokens: out}
	}
	return res
}

func mapFinishReason(s string) backend.StopReason {
	switch s {
	case "length":
		return backend.StopTruncated
	default:
		return backend.StopComplete
	}
}

// StreamParser folds Chat Completions stream chunks into backend
// chunks. OpenAI ends streams with a literal [DONE] data line; usage
// arrives on the final JSON chunk when stream_options requests it.
type StreamParser struct {
	usage      backend.Usage
	hasUsage   bool
	outputText int
}

// NewStreamParser creates a parser for one stream.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// UsageSnapshot returns the best usage known so far, estimating output
// tokens from streamed text when the vendor sent no usage block.
func (p *StreamParser) UsageSnapshot() *backend.Usage {
	u := p.usage
	if !p.hasUsage {
		u.OutputTokens = p.outputText
	}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return &u
}

// Parse handles one SSE data payload and returns any chunks it yields.
func (p *StreamParser) Parse(data string) ([]backend.Chunk, error) {
	if data == "[DONE]" {
		return []backend.Chunk{{Kind: backend.ChunkDone, Usage: p.UsageSnapshot()}}, nil
	}

	var wire apiResponse
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil, fmt.Errorf("malformed stream chunk: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("%s", wire.Error.Message)
	}

	if wire.Usage != nil {
		p.usage = backend.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		}
		p.hasUsage = true
	}

	var chunks []backend.Chunk
	if len(wire.Choices) > 0 && wire.Choices[0].Delta != nil && wire.Choices[0].Delta.Content != "" {
		text := wire.Choices[0].Delta.Content
		p.outputText += backend.EstimateTokens(text)
		chunks = append(chunks, backend.Chunk{Kind: backend.ChunkText, Text: text})
	}
	return chunks, nil
}
