// Package report renders a compliance run into a PDF document.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"regcheck/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	pageWidth  = 595.0 // A4 portrait, points
	marginX    = 50.0
	topY       = 60.0
	bottomY    = 790.0
	lineHeight = 14.0
	wrapWidth  = 92 // characters per line at body size
)

// pdfcpu create-from-JSON primitives, see pkg/api.Create.
type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type pdfText struct {
	Value    string    `json:"value"`
	Position []float64 `json:"position"`
	Font     pdfFont   `json:"font"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfDocument struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

// Render writes a PDF report for one compliance run. Findings are expected
// in report order (severity descending, then unit index).
func Render(w io.Writer, doc types.SubmittedDocument, run types.ComplianceRun, findings []types.Finding) error {
	b := newBuilder()

	b.heading(fmt.Sprintf("Compliance report: %s", doc.Filename))
	b.line(fmt.Sprintf("Generated %s", time.Now().Format("2006-01-02 15:04")))
	b.line(fmt.Sprintf("Run %s, started %s", run.ID, run.StartedAt.Format("2006-01-02 15:04:05")))
	b.gap()

	b.line(fmt.Sprintf("Overall status: %s", strings.ToUpper(string(run.Status))))
	b.line(fmt.Sprintf("Units analyzed: %d of %d (%d errored)", run.TotalUnits-run.ErrorUnits, run.TotalUnits, run.ErrorUnits))
	b.line(fmt.Sprintf("Compliance: %.1f%%", run.CompliancePct))
	b.line(fmt.Sprintf("Findings: %d total, %d critical, %d warning, %d info",
		run.Total, run.Critical, run.Warning, run.Info))
	b.gap()

	if len(findings) == 0 {
		b.line("No deviations found.")
	}
	for i, f := range findings {
		b.subheading(fmt.Sprintf("%d. [%s] %s", i+1, strings.ToUpper(types.SeverityBucket(f.Severity)), f.Title))
		b.line(fmt.Sprintf("Unit %d, severity %d, confidence %.2f", f.UnitIndex+1, f.Severity, f.Confidence))
		if f.Reference != "" {
			b.line("Reference: " + f.Reference)
		}
		b.wrapped(f.Description)
		if f.Recommendation != "" {
			b.wrapped("Recommendation: " + f.Recommendation)
		}
		b.gap()
	}

	data, err := json.Marshal(b.document())
	if err != nil {
		return fmt.Errorf("error building report description: %w", err)
	}
	if err := api.Create(nil, bytes.NewReader(data), w, api.LoadConfiguration()); err != nil {
		return fmt.Errorf("error rendering report pdf: %w", err)
	}
	return nil
}

// builder lays text lines onto A4 pages, top to bottom.
type builder struct {
	pages []pdfPage
	y     float64
}

func newBuilder() *builder {
	return &builder{pages: []pdfPage{{}}, y: topY}
}

func (b *builder) put(value string, size int) {
	if b.y > bottomY {
		b.pages = append(b.pages, pdfPage{})
		b.y = topY
	}
	page := &b.pages[len(b.pages)-1]
	page.Content.Text = append(page.Content.Text, pdfText{
		Value:    value,
		Position: []float64{marginX, b.y},
		Font:     pdfFont{Name: "Helvetica", Size: size},
	})
	b.y += lineHeight * float64(size) / 10
}

func (b *builder) heading(s string)    { b.put(s, 16); b.y += lineHeight / 2 }
func (b *builder) subheading(s string) { b.put(s, 12) }
func (b *builder) line(s string)       { b.put(s, 10) }
func (b *builder) gap()                { b.y += lineHeight / 2 }

func (b *builder) wrapped(s string) {
	for _, ln := range wrap(s, wrapWidth) {
		b.line(ln)
	}
}

func (b *builder) document() pdfDocument {
	doc := pdfDocument{
		Paper:  "A4",
		Origin: "upperLeft",
		Pages:  make(map[string]pdfPage, len(b.pages)),
	}
	for i, p := range b.pages {
		doc.Pages[fmt.Sprintf("%d", i+1)] = p
	}
	return doc
}

// wrap splits s into lines no wider than width, breaking on spaces.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	current := words[0]
	for _, w := range words[1:] {
		if len(current)+1+len(w) > width {
			lines = append(lines, current)
			current = w
			continue
		}
		current += " " + w
	}
	return append(lines, current)
}
