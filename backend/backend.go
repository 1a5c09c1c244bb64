// Package backend provides a uniform abstraction over vendor LLM APIs.
//
// Each vendor adapter implements the same generate/stream/cost contract,
// so the debate engine can treat heterogeneous model backends as
// interchangeable participants.
package backend

import (
	"context"
	"math"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged message in a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options holds per-request generation parameters.
type Options struct {
	// MaxTokens caps the generated output. Zero uses the adapter default.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64

	// System overrides the system prompt for this request.
	System string

	// ReasoningBudget requests an internal reasoning/thinking budget in
	// tokens, for backends that support it. Zero disables reasoning.
	ReasoningBudget int
}

// StopReason indicates why a generation finished.
type StopReason string

const (
	StopComplete  StopReason = "complete"
	StopTruncated StopReason = "truncated"
	StopError     StopReason = "error"
)

// Usage holds token accounting for a single generation call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result is the outcome of a non-streaming generation call.
type Result struct {
	Content    string     `json:"content"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Usage      Usage      `json:"usage"`
	StopReason StopReason `json:"stop_reason"`
}

// ChunkKind tags a streaming chunk.
type ChunkKind string

const (
	ChunkText      ChunkKind = "text"
	ChunkReasoning ChunkKind = "reasoning"
	ChunkError     ChunkKind = "error"
	ChunkDone      ChunkKind = "done"
)

// Chunk is one element of a streaming response. A stream yields zero or
// more text/reasoning chunks and terminates in exactly one done or error
// chunk, after which the channel is closed. Chunk boundaries carry no
// semantic meaning; consumers must not assume they align with words or
// sentences.
type Chunk struct {
	Kind ChunkKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Err  error     `json:"-"`

	// Usage is set on the terminal done chunk and carries the same
	// token counts a Generate call would have returned.
	Usage *Usage `json:"usage,omitempty"`
}

// Terminal reports whether the chunk ends its stream.
func (c Chunk) Terminal() bool {
	return c.Kind == ChunkDone || c.Kind == ChunkError
}

// Descriptor describes a backend: identity, underlying model, and
// pricing. Descriptors are immutable; the registry owns one adapter
// instance per descriptor ID.
type Descriptor struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"display_name"`
	Model           string  `json:"model"`
	Vendor          string  `json:"vendor"`
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
}

// EstimateCost returns the USD cost for the given token counts from the
// descriptor's pricing table, rounded to 4 decimal places so aggregate
// sums stay deterministic.
func (d Descriptor) EstimateCost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1000.0*d.InputCostPer1K +
		float64(outputTokens)/1000.0*d.OutputCostPer1K
	return RoundCost(cost)
}

// RoundCost rounds a USD amount to the fixed 4-decimal precision used
// throughout cost accounting.
func RoundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Backend is the uniform capability surface over a vendor model.
// Implementations hold no per-call mutable state and are safe to reuse
// across concurrent sessions.
type Backend interface {
	// Name returns the backend's unique identifier.
	Name() string

	// Descriptor returns the backend's immutable description.
	Descriptor() Descriptor

	// Generate performs a synchronous full completion.
	Generate(ctx context.Context, messages []Message, opts Options) (*Result, error)

	// Stream performs the same call incrementally. The returned channel
	// terminates in exactly one done or error chunk and is then closed.
	Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error)

	// EstimateCost is a pure function from the backend's pricing table.
	EstimateCost(inputTokens, outputTokens int) float64

	// Available reports whether the backend's credentials are present.
	Available() bool
}

// EstimateTokens is the conservative fallback used when a vendor
// response carries no usage data: roughly four characters per token,
// never less than one for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessagesTokens sums the token estimate over a message list.
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
