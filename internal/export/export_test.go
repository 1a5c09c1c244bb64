package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

func exportSession() *core.Session {
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	completed := created.Add(3 * time.Minute)
	return &core.Session{
		ID:       "abc12345-0000",
		Question: "Should we adopt feature flags?",
		Participants: []core.Participant{
			{ID: "p1", BackendID: "anthropic", Role: "strategic", Name: "Claude (Strategist)"},
			{ID: "p2", BackendID: "openai", Role: "implementation", Name: "GPT (Implementer)"},
		},
		Messages: []*core.Message{
			{ID: "m1", ParticipantID: "p1", Turn: 0, Content: "Flags decouple deploy from release.", CreatedAt: created},
			{
				ID: "m2", ParticipantID: core.HumanParticipantID, Turn: 1,
				Content:      "What about flag debt?",
				Interjection: &core.Interjection{Content: "What about flag debt?", Kind: core.InterjectChallenge},
				CreatedAt:    created,
			},
			{ID: "m3", ParticipantID: "p2", Turn: 2, Content: "I agree, with a cleanup policy.", IsAgreement: true, CreatedAt: created},
		},
		Status: core.StatusComplete,
		Cost: core.CostSnapshot{
			Rows:              []core.CostRow{{BackendID: "anthropic", InputTokens: 100, OutputTokens: 40, Cost: 0.002}},
			TotalInputTokens:  100,
			TotalOutputTokens: 40,
			TotalCost:         0.002,
		},
		Consensus: &core.Consensus{
			Summary:     "Adopt flags with a mandatory cleanup policy.",
			ActionItems: []string{"Pick a flag library", "Add a flag expiry check to CI"},
		},
		CreatedAt:   created,
		UpdatedAt:   completed,
		CompletedAt: &completed,
	}
}

func TestMarkdownExport(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(exportSession(), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Should we adopt feature flags?",
		"Claude (Strategist)",
		"Turn 1 - Human (interjection: challenge)",
		"I agree, with a cleanup policy.",
		"Adopt flags with a mandatory cleanup policy.",
		"- [ ] Pick a flag library",
		"| anthropic | 100 | 40 | 0.0020 |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestJSONExportRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(exportSession(), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var got core.Session
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.ID != "abc12345-0000" {
		t.Errorf("ID = %q", got.ID)
	}
	if len(got.Messages) != 3 {
		t.Errorf("got %d messages, want 3", len(got.Messages))
	}
	if got.Consensus == nil || len(got.Consensus.ActionItems) != 2 {
		t.Errorf("consensus = %+v", got.Consensus)
	}
}

func TestPDFExportProducesDocument(t *testing.T) {
	var buf bytes.Buffer
	if err := (&PDFExporter{}).Export(exportSession(), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("output does not look like a PDF")
	}
}

func TestGetExporter(t *testing.T) {
	for _, format := range []Format{FormatMarkdown, FormatPDF, FormatJSON} {
		if _, err := GetExporter(format); err != nil {
			t.Errorf("GetExporter(%s): %v", format, err)
		}
	}
	if _, err := GetExporter("docx"); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestGenerateFilename(t *testing.T) {
	s := exportSession()
	got := GenerateFilename(s, "md")
	if got != "debate_20260314_Should_we_adopt_feature_flags.md" {
		t.Errorf("filename = %q", got)
	}
	if strings.ContainsAny(got, "/\\:*?\"<>|") {
		t.Errorf("filename contains unsafe characters: %q", got)
	}
}
