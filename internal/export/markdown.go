package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/parleyhq/parley/internal/core"
)

// MarkdownExporter exports sessions to Markdown format.
type MarkdownExporter struct{}

// Export writes the session as Markdown.
func (e *MarkdownExporter) Export(session *core.Session, w io.Writer) error {
	var sb strings.Builder

	// Title
	sb.WriteString(fmt.Sprintf("# %s\n\n", session.Question))

	// Metadata
	sb.WriteString("## Session Information\n\n")
	sb.WriteString(fmt.Sprintf("- **ID:** `%s`\n", session.ID))
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", session.Status))
	if session.StatusReason != "" {
		sb.WriteString(fmt.Sprintf("- **Reason:** %s\n", session.StatusReason))
	}
	sb.WriteString(fmt.Sprintf("- **Created:** %s\n", session.CreatedAt.Format("January 2, 2006 at 3:04 PM")))
	if session.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("- **Completed:** %s\n", session.CompletedAt.Format("January 2, 2006 at 3:04 PM")))
		sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", formatDuration(session.CreatedAt, *session.CompletedAt)))
	}
	if session.AppContext != "" {
		sb.WriteString(fmt.Sprintf("- **Context:** %s\n", session.AppContext))
	}
	sb.WriteString("\n")

	// Participants
	sb.WriteString("## Participants\n\n")
	for _, p := range session.Participants {
		sb.WriteString(fmt.Sprintf("- **%s** (backend: %s, role: %s)\n", p.Name, p.BackendID, p.Role))
	}
	sb.WriteString("\n")

	// Transcript
	sb.WriteString("## Debate\n\n")
	if len(session.Messages) == 0 {
		sb.WriteString("*No messages recorded.*\n\n")
	} else {
		for _, m := range session.Messages {
			name := authorName(session, m)
			if m.Interjection != nil {
				sb.WriteString(fmt.Sprintf("#### Turn %d - %s (interjection: %s)\n\n", m.Turn, name, m.Interjection.Kind))
			} else {
				sb.WriteString(fmt.Sprintf("#### Turn %d - %s\n\n", m.Turn, name))
			}
			sb.WriteString(fmt.Sprintf("*%s*\n\n", m.CreatedAt.Format("3:04 PM")))
			sb.WriteString(m.Content)
			sb.WriteString("\n\n---\n\n")
		}
	}

	// Consensus
	if session.Consensus != nil {
		sb.WriteString("## Consensus\n\n")
		sb.WriteString(session.Consensus.Summary)
		sb.WriteString("\n\n")
		if len(session.Consensus.ActionItems) > 0 {
			sb.WriteString("### Action Items\n\n")
			for _, item := range session.Consensus.ActionItems {
				sb.WriteString(fmt.Sprintf("- [ ] %s\n", item))
			}
			sb.WriteString("\n")
		}
	}

	// Cost
	if len(session.Cost.Rows) > 0 {
		sb.WriteString("## Cost\n\n")
		sb.WriteString("| Backend | Input Tokens | Output Tokens | Cost (USD) |\n")
		sb.WriteString("|---------|-------------:|--------------:|-----------:|\n")
		for _, row := range session.Cost.Rows {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f |\n",
				row.BackendID, row.InputTokens, row.OutputTokens, row.Cost))
		}
		sb.WriteString(fmt.Sprintf("| **Total** | **%d** | **%d** | **%.4f** |\n\n",
			session.Cost.TotalInputTokens, session.Cost.TotalOutputTokens, session.Cost.TotalCost))
	}

	// Footer
	sb.WriteString("---\n\n")
	sb.WriteString("*Exported from parley*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}
