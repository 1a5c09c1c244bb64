// Package prompt builds the role prompts and inter-turn framing used
// by the debate engine. Everything here is pure string templating:
// no I/O, deterministic given its inputs.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/persona"
)

var (
	openingTmpl = template.Must(template.New("opening").Parse(`{{if .AppContext}}Environment context:
{{.AppContext}}

{{end}}The question under discussion:
"{{.Question}}"

Give your opening analysis from your assigned perspective.`))

	contextFrameTmpl = template.Must(template.New("frame").Parse(`{{.Name}} (the {{.Role}} voice) just responded:
---
{{.Content}}
---

Address their points directly. Acknowledge where you agree, justify where you differ, and if you believe the two of you have converged, say "I agree" and restate the shared position.`))

	synthesisTmpl = template.Must(template.New("synthesis").Parse(`You are the neutral moderator of a concluded technical discussion. You did not participate; your job is to synthesize.

The question was:
"{{.Question}}"

Full transcript:
{{.Transcript}}

Produce a unified answer. Resolve disagreements by weighing the arguments actually made, not by splitting the difference. Respond in this exact format:

SUMMARY:
[The unified answer, 1-2 paragraphs.]

ACTION ITEMS:
- [concrete next step]
- [concrete next step]`))

	interjectionTmpl = template.Must(template.New("interjection").Parse(`The human observer interjected ({{.Kind}}):
---
{{.Content}}
---

Take this into account before continuing.`))
)

// Builder produces system prompts and conversational framing for debate
// turns. Safe for concurrent use; it holds no per-call state.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SystemPromptFor returns the static system prompt for a role.
func (b *Builder) SystemPromptFor(role string) string {
	if p := persona.Get(role); p != nil {
		return p.SystemPrompt
	}
	return ""
}

// OpeningPrompt builds the very first turn's prompt, optionally
// prefixed with environment context.
func (b *Builder) OpeningPrompt(question, appContext string) string {
	return render(openingTmpl, map[string]string{
		"Question":   question,
		"AppContext": appContext,
	})
}

// ContextFrame wraps the other participant's most recent message so the
// next speaker receives it as conversational context.
func (b *Builder) ContextFrame(otherName, otherRole, otherLatest string) string {
	return render(contextFrameTmpl, map[string]string{
		"Name":    otherName,
		"Role":    otherRole,
		"Content": otherLatest,
	})
}

// InterjectionFrame wraps a human interjection for the next speaker.
func (b *Builder) InterjectionFrame(kind core.InterjectionKind, content string) string {
	return render(interjectionTmpl, map[string]string{
		"Kind":    string(kind),
		"Content": content,
	})
}

// SynthesisPrompt instructs the synthesis pass to reduce the transcript
// into a summary and action items.
func (b *Builder) SynthesisPrompt(question string, session *core.Session) string {
	return render(synthesisTmpl, map[string]string{
		"Question":   question,
		"Transcript": FormatTranscript(session),
	})
}

// FormatTranscript renders the full message log as readable text, one
// attributed block per turn.
func FormatTranscript(session *core.Session) string {
	var sb strings.Builder
	for _, m := range session.Messages {
		name := "Human"
		if p := session.ParticipantByID(m.ParticipantID); p != nil {
			name = p.Name
		}
		fmt.Fprintf(&sb, "\n--- %s (turn %d) ---\n%s\n", name, m.Turn, m.Content)
	}
	return sb.String()
}

func render(tmpl *template.Template, data any) string {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		// Templates are static and data is a flat map; execution cannot
		// fail at runtime, but keep the error visible if it ever does.
		return fmt.Sprintf("template error: %v", err)
	}
	return sb.String()
}
