package anthropic

import (
	"testing"

	"github.com/parleyhq/parley/backend"
)

func TestBuildRequest(t *testing.T) {
	t.Run("SystemExtracted", func(t *testing.T) {
		req := buildRequest("m", []backend.Message{
			{Role: backend.RoleSystem, Content: "be brief"},
			{Role: backend.RoleUser, Content: "hello"},
		}, backend.Options{}, false)

		if req.System != "be brief" {
			t.Errorf("system not extracted: %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("wrong messages: %+v", req.Messages)
		}
	})

	t.Run("ConsecutiveRolesMerged", func(t *testing.T) {
		req := buildRequest("m", []backend.Message{
			{Role: backend.RoleUser, Content: "first"},
			{Role: backend.RoleUser, Content: "second"},
			{Role: backend.RoleAssistant, Content: "reply"},
		}, backend.Options{}, false)

		if len(req.Messages) != 2 {
			t.Fatalf("expected merged messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Content != "first\n\nsecond" {
			t.Errorf("merge wrong: %q", req.Messages[0].Content)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		req := buildRequest("m", nil, backend.Options{}, true)
		if req.MaxTokens != defaultMaxTokens {
			t.Errorf("max tokens default wrong: %d", req.MaxTokens)
		}
		if !req.Stream {
			t.Error("stream flag not set")
		}
	})

	t.Run("Reasoning", func(t *testing.T) {
		req := buildRequest("m", nil, backend.Options{ReasoningBudget: 512}, false)
		if req.Thinking == nil || req.Thinking.BudgetTokens != 512 {
			t.Errorf("thinking config wrong: %+v", req.Thinking)
		}
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("TextAndUsage", func(t *testing.T) {
		res := ParseResponse(&apiResponse{
			Content:    []apiContentBlock{{Type: "text", Text: "hi "}, {Type: "text", Text: "there"}},
			StopReason: "end_turn",
			Usage:      &apiUsage{InputTokens: 10, OutputTokens: 5},
		})

		if res.Content != "hi there" {
			t.Errorf("content wrong: %q", res.Content)
		}
		if res.Usage.TotalTokens != 15 {
			t.Errorf("usage wrong: %+v", res.Usage)
		}
		if res.StopReason != backend.StopComplete {
			t.Errorf("stop reason wrong: %s", res.StopReason)
		}
	})

	t.Run("Thinking", func(t *testing.T) {
		res := ParseResponse(&apiResponse{
			Content: []apiContentBlock{
				{Type: "thinking", Thinking: "let me think"},
				{Type: "text", Text: "answer"},
			},
		})
		if res.Reasoning != "let me think" {
			t.Errorf("reasoning wrong: %q", res.Reasoning)
		}
		if res.Content != "answer" {
			t.Errorf("content wrong: %q", res.Content)
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		res := ParseResponse(&apiResponse{StopReason: "max_tokens"})
		if res.StopReason != backend.StopTruncated {
			t.Errorf("stop reason wrong: %s", res.StopReason)
		}
	})

	t.Run("MissingUsageEstimated", func(t *testing.T) {
		res := ParseResponse(&apiResponse{
			Content: []apiContentBlock{{Type: "text", Text: "12345678"}},
		})
		if res.Usage.OutputTokens != 2 {
			t.Errorf("estimate wrong: %+v", res.Usage)
		}
	})
}

func TestStreamParser(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":25,"output_tokens":1}}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":12}}`,
		`{"type":"message_stop"}`,
	}

	p := NewStreamParser()
	var text string
	var done *backend.Chunk

	for _, raw := range events {
		chunks, err := p.Parse(raw)
		if err != nil {
			t.Fatalf("parse failed on %q: %v", raw, err)
		}
		for _, c := range chunks {
			switch c.Kind {
			case backend.ChunkText:
				text += c.Text
			case backend.ChunkDone:
				cc := c
				done = &cc
			}
		}
	}

	if text != "Hello world" {
		t.Errorf("text wrong: %q", text)
	}
	if done == nil {
		t.Fatal("no done chunk emitted")
	}
	if done.Usage.InputTokens != 25 || done.Usage.OutputTokens != 12 {
		t.Errorf("final usage wrong: %+v", done.Usage)
	}
	if done.Usage.TotalTokens != 37 {
		t.Errorf("total wrong: %d", done.Usage.TotalTokens)
	}
}

func TestStreamParserThinkingDelta(t *testing.T) {
	p := NewStreamParser()
	chunks, err := p.Parse(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Kind != backend.ChunkReasoning || chunks[0].Text != "hmm" {
		t.Errorf("wrong chunks: %+v", chunks)
	}
}

func TestStreamParserError(t *testing.T) {
	p := NewStreamParser()
	_, err := p.Parse(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	if err == nil {
		t.Fatal("expected error event to fail")
	}
}

func TestStreamParserIgnoresPing(t *testing.T) {
	p := NewStreamParser()
	chunks, err := p.Parse(`{"type":"ping"}`)
	if err != nil {
		t.Fatalf("ping errored: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("ping yielded chunks: %+v", chunks)
	}
}
