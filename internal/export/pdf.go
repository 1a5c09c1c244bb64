package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/parleyhq/parley/internal/core"
)

// PDFExporter exports sessions to PDF format.
type PDFExporter struct{}

// turnFillColors cycles per participant so speakers are visually
// distinguishable.
var turnFillColors = [][3]int{
	{200, 230, 255}, // Light blue
	{200, 255, 200}, // Light green
	{255, 235, 200}, // Light orange
	{235, 215, 255}, // Light purple
}

// Export writes the session as PDF.
func (e *PDFExporter) Export(session *core.Session, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, e.sanitizeText(session.Question), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Session Information")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	id := session.ID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	e.addMetadataRow(pdf, "ID:", id)
	e.addMetadataRow(pdf, "Status:", string(session.Status))
	e.addMetadataRow(pdf, "Created:", session.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	if session.CompletedAt != nil {
		e.addMetadataRow(pdf, "Completed:", session.CompletedAt.Format("January 2, 2006 at 3:04 PM"))
		e.addMetadataRow(pdf, "Duration:", formatDuration(session.CreatedAt, *session.CompletedAt))
	}
	pdf.Ln(5)

	// Participants section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Participants")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	for i, p := range session.Participants {
		color := turnFillColors[i%len(turnFillColors)]
		e.addParticipantBox(pdf, p, color[0], color[1], color[2])
		pdf.Ln(3)
	}
	pdf.Ln(5)

	// Transcript
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate")
	pdf.Ln(8)

	if len(session.Messages) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No messages recorded.")
		pdf.Ln(6)
	} else {
		for _, m := range session.Messages {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}

			fill := [3]int{230, 230, 230} // Grey for the human
			for i, p := range session.Participants {
				if p.ID == m.ParticipantID {
					fill = turnFillColors[i%len(turnFillColors)]
					break
				}
			}
			pdf.SetFillColor(fill[0], fill[1], fill[2])

			pdf.SetFont("Arial", "B", 10)
			header := fmt.Sprintf("Turn %d - %s (%s)", m.Turn, authorName(session, m), m.CreatedAt.Format("3:04 PM"))
			if m.Interjection != nil {
				header = fmt.Sprintf("Turn %d - %s [%s] (%s)", m.Turn, authorName(session, m), m.Interjection.Kind, m.CreatedAt.Format("3:04 PM"))
			}
			pdf.CellFormat(0, 7, e.sanitizeText(header), "", 1, "", true, 0, "")

			pdf.SetFont("Arial", "", 9)
			pdf.SetFillColor(255, 255, 255)
			pdf.MultiCell(0, 5, e.sanitizeText(m.Content), "", "", false)
			pdf.Ln(5)
		}
	}

	// Consensus
	if session.Consensus != nil {
		if pdf.GetY() > 230 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Consensus")
		pdf.Ln(8)

		pdf.SetFillColor(200, 255, 200)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, "Consensus Reached", "", 1, "", true, 0, "")

		pdf.SetFont("Arial", "", 10)
		pdf.SetFillColor(255, 255, 255)
		pdf.MultiCell(0, 5, e.sanitizeText(session.Consensus.Summary), "", "", false)
		pdf.Ln(3)

		if len(session.Consensus.ActionItems) > 0 {
			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(0, 6, "Action Items:")
			pdf.Ln(6)
			pdf.SetFont("Arial", "", 9)
			for _, item := range session.Consensus.ActionItems {
				pdf.MultiCell(0, 5, "- "+e.sanitizeText(item), "", "", false)
			}
			pdf.Ln(3)
		}
	}

	// Cost table
	if len(session.Cost.Rows) > 0 {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Cost")
		pdf.Ln(8)

		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(50, 6, "Backend", "1", 0, "", true, 0, "")
		pdf.CellFormat(35, 6, "Input Tokens", "1", 0, "R", true, 0, "")
		pdf.CellFormat(35, 6, "Output Tokens", "1", 0, "R", true, 0, "")
		pdf.CellFormat(30, 6, "Cost (USD)", "1", 1, "R", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetFillColor(255, 255, 255)
		for _, row := range session.Cost.Rows {
			pdf.CellFormat(50, 6, row.BackendID, "1", 0, "", false, 0, "")
			pdf.CellFormat(35, 6, fmt.Sprintf("%d", row.InputTokens), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, fmt.Sprintf("%d", row.OutputTokens), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", row.Cost), "1", 1, "R", false, 0, "")
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(50, 6, "Total", "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", session.Cost.TotalInputTokens), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", session.Cost.TotalOutputTokens), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", session.Cost.TotalCost), "1", 1, "R", false, 0, "")
	}

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from parley", "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

// Helper to add a metadata row
func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, value)
	pdf.Ln(5)
}

// Helper to add a participant box
func (e *PDFExporter) addParticipantBox(pdf *gofpdf.Fpdf, p core.Participant, r, g, b int) {
	pdf.SetFillColor(r, g, b)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, e.sanitizeText(p.Name), "", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(255, 255, 255)
	pdf.Cell(25, 5, "Backend:")
	pdf.Cell(0, 5, p.BackendID)
	pdf.Ln(5)
	pdf.Cell(25, 5, "Role:")
	pdf.Cell(0, 5, p.Role)
	pdf.Ln(5)
}

// Sanitize text for PDF (remove problematic characters)
func (e *PDFExporter) sanitizeText(text string) string {
	// gofpdf uses Windows-1252 encoding by default
	replacer := strings.NewReplacer(
		"‘", "'", // Left single quote
		"’", "'", // Right single quote
		"“", "\"", // Left double quote
		"”", "\"", // Right double quote
		"–", "-", // En dash
		"—", "--", // Em dash
		"…", "...", // Ellipsis
		"•", "*", // Bullet
		" ", " ", // Non-breaking space
	)
	return replacer.Replace(text)
}
