package openai

import (
	"testing"

	"github.com/parleyhq/parley/backend"
)

func TestBuildRequest(t *testing.T) {
	t.Run("SystemOverrideLeads", func(t *testing.T) {
		req := buildRequest("m", []backend.Message{
			{Role: backend.RoleUser, Content: "hi"},
		}, backend.Options{System: "be terse"}, false)

		if len(req.Messages) != 2 {
			t.Fatalf("wrong message count: %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" || req.Messages[0].Content != "be terse" {
			t.Errorf("system message wrong: %+v", req.Messages[0])
		}
	})

	t.Run("StreamRequestsUsage", func(t *testing.T) {
		req := buildRequest("m", nil, backend.Options{}, true)
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("stream_options.include_usage not set")
		}
	})

	t.Run("NonStreamOmitsStreamOptions", func(t *testing.T) {
		req := buildRequest("m", nil, backend.Options{}, false)
		if req.StreamOptions != nil {
			t.Error("stream_options set on non-streaming request")
		}
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("ContentAndUsage", func(t *testing.T) {
		content := "the answer"
		res := ParseResponse(&apiResponse{
			Choices: []apiChoice{{
				Message:      &apiMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			}},
			Usage: &apiUsage{PromptTokens: 40, CompletionTokens: 8, TotalTokens: 48},
		})

		if res.Content != content {
			t.Errorf("content wrong: %q", res.Content)
		}
		if res.Usage.InputTokens != 40 || res.Usage.OutputTokens != 8 {
			t.Errorf("usage wrong: %+v", res.Usage)
		}
		if res.StopReason != backend.StopComplete {
			t.Errorf("stop reason wrong: %s", res.StopReason)
		}
	})

	t.Run("LengthTruncated", func(t *testing.T) {
		res := ParseResponse(&apiResponse{
			Choices: []apiChoice{{Message: &apiMessage{Content: "cut"}, FinishReason: "length"}},
		})
		if res.StopReason != backend.StopTruncated {
			t.Errorf("stop reason wrong: %s", res.StopReason)
		}
	})
}

func TestStreamParser(t *testing.T) {
	events := []string{
		`{"choices":[{"delta":{"role":"assistant","content":""},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":30,"completion_tokens":7,"total_tokens":37}}`,
		`[DONE]`,
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

	if text != "Hello" {
		t.Errorf("text wrong: %q", text)
	}
	if done == nil {
		t.Fatal("no done chunk emitted")
	}
	if done.Usage.InputTokens != 30 || done.Usage.OutputTokens != 7 || done.Usage.TotalTokens != 37 {
		t.Errorf("final usage wrong: %+v", done.Usage)
	}
}

func TestStreamParserNoUsageEstimates(t *testing.T) {
	p := NewStreamParser()
	p.Parse(`{"choices":[{"delta":{"content":"12345678"},"finish_reason":null}]}`)
	chunks, err := p.Parse(`[DONE]`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Kind != backend.ChunkDone {
		t.Fatalf("expected done chunk, got %+v", chunks)
	}
	if chunks[0].Usage.OutputTokens != 2 {
		t.Errorf("estimated output tokens wrong: %+v", chunks[0].Usage)
	}
}

func TestStreamParserError(t *testing.T) {
	p := NewStreamParser()
	_, err := p.Parse(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	if err == nil {
		t.Fatal("expected error payload to fail")
	}
}
