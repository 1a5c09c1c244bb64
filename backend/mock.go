package backend

import (
	"context"
	"sync"
)

// MockBackend is a scriptable in-memory backend used by tests and
// offline runs. Responses cycle in order; failures can be injected up
// front to exercise retry paths.
type MockBackend struct {
	descriptor  Descriptor
	unavailable bool

	mu        sync.Mutex
	responses []string
	usage     Usage
	failures  int
	calls     int
}

// MockConfig scripts a mock backend.
type MockConfig struct {
	ID        string
	Responses []string
	// Usage reported on every call. Zero values fall back to estimates.
	Usage Usage
	// Failures makes the first N calls fail with an upstream error.
	Failures int
	// Unavailable forces Available() to report false.
	Unavailable bool
}

// NewMock creates a mock backend.
func NewMock(cfg MockConfig) *MockBackend {
	id := cfg.ID
	if id == "" {
		id = "mock"
	}
	responses := cfg.Responses
	if len(responses) == 0 {
		responses = []string{"mock response"}
	}
	return &MockBackend{
		descriptor: Descriptor{
			ID:              id,
			DisplayName:     "Mock",
			Model:           "mock-1",
			Vendor:          "parley",
			InputCostPer1K:  0.001,
			OutputCostPer1K: 0.002,
		},
		unavailable: cfg.Unavailable,
		responses:   responses,
		usage:       cfg.Usage,
		failures:    cfg.Failures,
	}
}

// Name returns the backend identifier.
func (m *MockBackend) Name() string { return m.descriptor.ID }

// Descriptor returns the backend's description.
func (m *MockBackend) Descriptor() Descriptor { return m.descriptor }

// EstimateCost applies the mock pricing table.
func (m *MockBackend) EstimateCost(inputTokens, outputTokens int) float64 {
	return m.descriptor.EstimateCost(inputTokens, outputTokens)
}

// Available reports the scripted availability.
func (m *MockBackend) Available() bool { return !m.unavailable }

// Calls returns how many generate/stream calls have been made.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockBackend) next(messages []Message) (string, Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failures > 0 {
		m.failures--
		return "", Usage{}, &Error{Kind: KindUpstream, Backend: m.descriptor.ID, Message: "scripted failure"}
	}

	content := m.responses[(m.calls-1)%len(m.responses)]
	usage := m.usage
	if usage.InputTokens == 0 {
		usage.InputTokens = EstimateMessagesTokens(messages)
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = EstimateTokens(content)
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return content, usage, nil
}

// Generate returns the next scripted response.
func (m *MockBackend) Generate(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapErr(m.descriptor.ID, err)
	}
	content, usage, err := m.next(messages)
	if err != nil {
		return nil, err
	}
	return &Result{Content: content, Usage: usage, StopReason: StopComplete}, nil
}

// Stream emits the next scripted response split into two text chunks
// followed by a done chunk, exercising multi-chunk consumers.
func (m *MockBackend) Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error) {
	ch := make(chan Chunk, 4)
	content, usage, err := m.next(messages)
	if err != nil {
		ch <- Chunk{Kind: ChunkError, Err: err}
		close(ch)
		return ch, nil
	}

	go func() {
		defer close(ch)
		half := len(content) / 2
		for _, part := range []string{content[:half], content[half:]} {
			if part == "" {
				continue
			}
			select {
			case ch <- Chunk{Kind: ChunkText, Text: part}:
			case <-ctx.Done():
				ch <- Chunk{Kind: ChunkError, Err: WrapErr(m.descriptor.ID, ctx.Err())}
				return
			}
		}
		select {
		case ch <- Chunk{Kind: ChunkDone, Usage: &usage}:
		case <-ctx.Done():
			ch <- Chunk{Kind: ChunkError, Err: WrapErr(m.descriptor.ID, ctx.Err())}
		}
	}()

	return ch, nil
}
