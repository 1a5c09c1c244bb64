package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/parleyhq/parley/backend"
)

// Wire formats for the generateContent API.

type apiPart struct {
	Text string `json:"text,omitempty"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type apiRequest struct {
	Contents          []apiContent         `json:"contents"`
	SystemInstruction *apiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type apiCandidate struct {
	Content      *apiContent `json:"content,omitempty"`
	FinishReason string      `json:"finishReason,omitempty"`
}

type apiResponse struct {
	Candidates    []apiCandidate    `json:"candidates,omitempty"`
	UsageMetadata *apiUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildRequest converts the neutral message list into the Gemini wire
// shape. Assistant turns map to the "model" role; system content goes
// into systemInstruction.
func buildRequest(messages []backend.Message, opts backend.Options) *apiRequest {
	req := &apiRequest{
		GenerationConfig: &apiGenerationConfig{MaxOutputTokens: opts.MaxTokens},
	}
	if req.GenerationConfig.MaxOutputTokens <= 0 {
		req.GenerationConfig.MaxOutputTokens = defaultMaxTokens
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.GenerationConfig.Temperature = &t
	}

	var system string
	if opts.System != "" {
		system = opts.System
	}
	for _, m := range messages {
		switch m.Role {
		case backend.RoleSystem:
			if system == "" {
				system = m.Content
			} else {
				system += "\n\n" + m.Content
			}
		case backend.RoleAssistant:
			req.Contents = append(req.Contents, apiContent{Role: "model", Parts: []apiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, apiContent{Role: "user", Parts: []apiPart{{Text: m.Content}}})
		}
	}
	if system != "" {
		req.SystemInstruction = &apiContent{Parts: []apiPart{{Text: system}}}
	}
	return req
}

func candidateText(wire *apiResponse) string {
	if len(wire.Candidates) == 0 || wire.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range wire.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text
}

// ParseResponse converts a full generateContent response into a Result.
func ParseResponse(wire *apiResponse) *backend.Result {
	res := &backend.Result{
		Content:    candidateText(wire),
		StopReason: backend.StopComplete,
	}
	if len(wire.Candidates) > 0 {
		res.StopReason = mapFinishReason(wire.Candidates[0].FinishReason)
	}
	if wire.UsageMetadata != nil {
		res.Usage = backend.Usage{
			InputTokens:  wire.UsageMetadata.PromptTokenCount,
			OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  wire.UsageMetadata.TotalTokenCount,
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
	case "MAX_TOKENS":
		return backend.StopTruncated
	default:
		return backend.StopComplete
	}
}

// StreamParser folds streamGenerateContent SSE chunks into backend
// chunks. Usage metadata is cumulative across chunks; the chunk whose
// candidate carries a finishReason terminates the stream.
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
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return &u
}

// Parse handles one SSE data payload and returns any chunks it yields.
func (p *StreamParser) Parse(data string) ([]backend.Chunk, error) {
	var wire apiResponse
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil, fmt.Errorf("malformed stream chunk: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("%s", wire.Error.Message)
	}

	if wire.UsageMetadata != nil {
		p.usage = backend.Usage{
			InputTokens:  wire.UsageMetadata.PromptTokenCount,
			OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  wire.UsageMetadata.TotalTokenCount,
		}
	}

	var chunks []backend.Chunk
	if text := candidateText(&wire); text != "" {
		chunks = append(chunks, backend.Chunk{Kind: backend.ChunkText, Text: text})
	}
	if len(wire.Candidates) > 0 && wire.Candidates[0].FinishReason != "" {
		chunks = append(chunks, backend.Chunk{Kind: backend.ChunkDone, Usage: p.UsageSnapshot()})
	}
	return chunks, nil
}
