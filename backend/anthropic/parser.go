package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/parleyhq/parley/backend"
)

// Wire formats for the Messages API.

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []apiMessage    `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Thinking    *apiThinkingCfg `json:"thinking,omitempty"`
}

type apiThinkingCfg struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type apiResponse struct {
	Type       string            `json:"type"`
	Model      string            `json:"model,omitempty"`
	Content    []apiContentBlock `json:"content,omitempty"`
	StopReason string            `json:"stop_reason,omitempty"`
	Usage      *apiUsage         `json:"usage,omitempty"`
}

// buildRequest converts the neutral message list into the Anthropic
// wire shape. System messages fold into the top-level system field, and
// consecutive same-role messages are merged since the API requires
// alternating user/assistant turns.
func buildRequest(model string, messages []backend.Message, opts backend.Options, stream bool) *apiRequest {
	req := &apiRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
		System:    opts.System,
		Stream:    stream,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}
	if opts.ReasoningBudget > 0 {
		req.Thinking = &apiThinkingCfg{Type: "enabled", BudgetTokens: opts.ReasoningBudget}
	}

	for _, m := range messages {
		if m.Role == backend.RoleSystem {
			if req.System == "" {
				req.System = m.Content
			} else {
				req.System += "\n\n" + m.Content
			}
			continue
		}
		role := string(m.Role)
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == role {
			req.Messages[n-1].Content += "\n\n" + m.Content
			continue
		}
		req.Messages = append(req.Messages, apiMessage{Role: role, Content: m.Content})
	}
	return req
}

// ParseResponse converts a full Messages API response into a Result.
func ParseResponse(wire *apiResponse) *backend.Result {
	res := &backend.Result{StopReason: mapStopReason(wire.StopReason)}
	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			res.Content += block.Text
		case "thinking":
			res.Reasoning += block.Thinking
		}
	}
	if wire.Usage != nil {
		res.Usage = backend.Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
			TotalTokens:  wire.Usage.InputTokens + wire.Usage.OutputTokens,
		}
	} else {
		out := backend.EstimateTokens(res.Content)
		res.Usage = backend.Usage{OutputTokens: out, TotalTokens: out}
	}
	return res
}

func mapStopReason(s string) backend.StopReason {
	switch s {
	case "max_tokens":
		return backend.StopTruncated
	case "", "end_turn", "stop_sequence":
		return backend.StopComplete
	default:
		return backend.StopComplete
	}
}

// Streaming wire events.

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage apiUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		Thinking   string `json:"thinking,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Usage *apiUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StreamParser folds Messages API stream events into chunks, tracking
// usage so the terminal done chunk carries the same counts a Generate
// call would have returned.
type StreamParser struct {
	usage backend.Usage
}

// NewStreamParser creates a parser for one stream.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// UsageSnapshot returns the usage accumulated so far.
func (p *StreamParser) UsageSnapshot() *backend.Usage {
	u := p.usage
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return &u
}

// Parse handles one SSE data payload and returns any chunks it yields.
func (p *StreamParser) Parse(data string) ([]backend.Chunk, error) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("malformed stream event: %w", err)
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			p.usage.InputTokens = ev.Message.Usage.InputTokens
			p.usage.OutputTokens = ev.Message.Usage.OutputTokens
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []backend.Chunk{{Kind: backend.ChunkText, Text: ev.Delta.Text}}, nil
		case "thinking_delta":
			return []backend.Chunk{{Kind: backend.ChunkReasoning, Text: ev.Delta.Thinking}}, nil
		}
		return nil, nil

	case "message_delta":
		if ev.Usage != nil {
			p.usage.OutputTokens = ev.Usage.OutputTokens
			if ev.Usage.InputTokens > 0 {
				p.usage.InputTokens = ev.Usage.InputTokens
			}
		}
		return nil, nil

	case "message_stop":
		return []backend.Chunk{{Kind: backend.ChunkDone, Usage: p.UsageSnapshot()}}, nil

	case "error":
		msg := "stream error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		return nil, fmt.Errorf("%s", msg)
	}

	// ping and future event types are ignored.
	return nil, nil
}
