// Package report renders generated summaries into PDF documents on disk.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Meta describes the summary a rendered report belongs to.
type Meta struct {
	ID           string
	Type         string
	Style        string
	GeneratedAt  time.Time
	MessageCount int
	Channels     []string
}

// Renderer writes summary PDFs under a reports directory.
type Renderer struct {
	dir string
}

// New builds a renderer rooted at dataDir/reports.
func New(dataDir string) *Renderer {
	return &Renderer{dir: filepath.Join(dataDir, "reports")}
}

// Dir returns the directory rendered reports are written to.
func (r *Renderer) Dir() string {
	return r.dir
}

// Path returns the location a report with the given ID would occupy.
func (r *Renderer) Path(id string) string {
	return filepath.Join(r.dir, id+".pdf")
}

// Render writes the summary text as a PDF named after meta.ID and returns
// the file path.
func (r *Renderer) Render(text string, meta Meta) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("%s Summary", meta.Type), true)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, fmt.Sprintf("%s Summary", meta.Type), "", 1, "L", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(100, 100, 100)
	doc.CellFormat(0, 6, fmt.Sprintf("Generated %s", meta.GeneratedAt.Format("January 2, 2006 15:04 MST")), "", 1, "L", false, 0, "")
	subtitle := fmt.Sprintf("%d messages", meta.MessageCount)
	if meta.Style != "" {
		subtitle += " / " + meta.Style + " style"
	}
	if len(meta.Channels) > 0 {
		subtitle += " / #" + strings.Join(meta.Channels, ", #")
	}
	doc.CellFormat(0, 6, subtitle, "", 1, "L", false, 0, "")
	doc.SetTextColor(0, 0, 0)
	doc.Ln(4)

	writeBody(doc, text)

	path := r.Path(meta.ID)
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

// writeBody lays out markdown-ish summary text: ## headings become bold
// section titles, "- " lines become indented bullets, everything else flows
// as paragraphs.
func writeBody(doc *fpdf.Fpdf, text string) {
	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		switch {
		case line == "":
			doc.Ln(3)
		case strings.HasPrefix(line, "## "):
			doc.SetFont("Helvetica", "B", 13)
			doc.MultiCell(0, 7, tr(strings.TrimPrefix(line, "## ")), "", "L", false)
			doc.Ln(1)
		case strings.HasPrefix(line, "# "):
			doc.SetFont("Helvetica", "B", 15)
			doc.MultiCell(0, 8, tr(strings.TrimPrefix(line, "# ")), "", "L", false)
			doc.Ln(1)
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			doc.SetFont("Helvetica", "", 11)
			doc.SetX(doc.GetX() + 4)
			doc.MultiCell(0, 6, tr("• "+line[2:]), "", "L", false)
		default:
			doc.SetFont("Helvetica", "", 11)
			doc.MultiCell(0, 6, tr(stripEmphasis(line)), "", "L", false)
		}
	}
}

func stripEmphasis(line string) string {
	return strings.ReplaceAll(line, "**", "")
}
