// Package chunker splits regulatory text into retrieval units.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"regcheck/types"

	"github.com/google/uuid"
)

// DefaultMinLength is the minimum chunk length in characters. Fragments
// shorter than this are merged into a neighbour.
const DefaultMinLength = 50

var (
	// sectionPattern matches numbered headings like "4.1 Requirements".
	sectionPattern = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)
	// tablePattern matches markdown/pipe table rows and tab-separated rows.
	tablePattern = regexp.MustCompile(`^\s*\|.*\|\s*$|\t.*\t`)
	// figurePattern matches figure captions.
	figurePattern = regexp.MustCompile(`(?i)^\s*(figure|fig\.)\s*\d`)
)

// Chunker is a pure splitter: no side effects, never fails on malformed
// text. Empty input yields an empty list.
type Chunker struct {
	minLength int
}

func New(minLength int) *Chunker {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Chunker{minLength: minLength}
}

// Split breaks raw text into ordered chunks tagged with stable ids
// "{parentID}_{position}". Structural boundaries are blank lines, table
// blocks and figure captions. Page numbers follow form-feed separators.
func (c *Chunker) Split(parentID uuid.UUID, text string) []types.RegulatoryChunk {
	if strings.TrimSpace(text) == "" {
		return []types.RegulatoryChunk{}
	}

	fragments := c.fragment(text)
	fragments = c.mergeShort(fragments)

	chunks := make([]types.RegulatoryChunk, 0, len(fragments))
	for i, f := range fragments {
		chunks = append(chunks, types.RegulatoryChunk{
			ChunkID:  ChunkID(parentID, i),
			DocID:    parentID,
			Position: i,
			Type:     f.kind,
			Section:  f.section,
			Page:     f.page,
			Content:  f.content,
			Metadata: map[string]string{},
		})
	}
	return chunks
}

// ChunkID derives the stable chunk identifier from parent id and position.
func ChunkID(parentID uuid.UUID, position int) string {
	return fmt.Sprintf("%s_%d", parentID, position)
}

type fragment struct {
	kind    types.ChunkType
	section string
	page    int
	content string
}

func (c *Chunker) fragment(text string) []fragment {
	var out []fragment
	var buf []string
	var tableBuf []string

	section := ""
	page := 1

	flushText := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if content == "" {
			return
		}
		kind := types.ChunkParagraph
		if figurePattern.MatchString(content) {
			kind = types.ChunkFigure
		}
		out = append(out, fragment{kind: kind, section: section, page: page, content: content})
	}
	flushTable := func() {
		content := strings.TrimSpace(strings.Join(tableBuf, "\n"))
		tableBuf = tableBuf[:0]
		if content == "" {
			return
		}
		out = append(out, fragment{kind: types.ChunkTable, section: section, page: page, content: content})
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "\f") {
			// Text on either side of a form feed belongs to its own page.
			parts := strings.Split(line, "\f")
			for _, part := range parts[:len(parts)-1] {
				if strings.TrimSpace(part) != "" {
					buf = append(buf, part)
				}
				flushText()
				flushTable()
				page++
			}
			line = parts[len(parts)-1]
		}

		trimmed := strings.TrimSpace(line)

		if tablePattern.MatchString(line) {
			flushText()
			tableBuf = append(tableBuf, line)
			continue
		}
		if len(tableBuf) > 0 {
			flushTable()
		}

		if trimmed == "" {
			flushText()
			continue
		}
		if sectionPattern.MatchString(trimmed) && len(trimmed) < 120 {
			flushText()
			section = trimmed
		}
		buf = append(buf, line)
	}
	flushText()
	flushTable()

	return out
}

// mergeShort folds fragments below the minimum length into their previous
// neighbour, or the next one when they open the document.
func (c *Chunker) mergeShort(frags []fragment) []fragment {
	if len(frags) <= 1 {
		return frags
	}

	result := make([]fragment, 0, len(frags))
	for _, f := range frags {
		if len(f.content) < c.minLength && len(result) > 0 {
			prev := &result[len(result)-1]
			prev.content = prev.content + "\n" + f.content
			continue
		}
		result = append(result, f)
	}

	// A short opening fragment could not merge backwards; merge it forward.
	if len(result) > 1 && len(result[0].content) < c.minLength {
		result[1].content = result[0].content + "\n" + result[1].content
		result[1].section = firstNonEmpty(result[0].section, result[1].section)
		result = result[1:]
	}
	return result
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
