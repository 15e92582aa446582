package chunker

import (
	"fmt"
	"strings"
	"testing"

	"regcheck/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	c := New(0)
	id := uuid.New()

	assert.Empty(t, c.Split(id, ""))
	assert.Empty(t, c.Split(id, "   \n\n\t  "))
}

func TestSplitParagraphs(t *testing.T) {
	c := New(10)
	id := uuid.New()

	text := "First paragraph about wall thickness requirements.\n\nSecond paragraph about fire safety measures in buildings."
	chunks := c.Split(id, text)

	require.Len(t, chunks, 2)
	assert.Equal(t, types.ChunkParagraph, chunks[0].Type)
	assert.Contains(t, chunks[0].Content, "wall thickness")
	assert.Contains(t, chunks[1].Content, "fire safety")
}

func TestStableIDs(t *testing.T) {
	c := New(10)
	id := uuid.New()
	text := "Paragraph one has enough text.\n\nParagraph two has enough text."

	first := c.Split(id, text)
	second := c.Split(id, text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, fmt.Sprintf("%s_%d", id, i), first[i].ChunkID)
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, i, first[i].Position)
	}
}

func TestTableDetection(t *testing.T) {
	c := New(5)
	id := uuid.New()

	text := "Intro paragraph long enough to stand alone here.\n\n| Param | Value |\n| thickness | 200mm |\n\nClosing paragraph long enough to stand alone."
	chunks := c.Split(id, text)

	require.Len(t, chunks, 3)
	assert.Equal(t, types.ChunkTable, chunks[1].Type)
	assert.Contains(t, chunks[1].Content, "200mm")
}

func TestFigureDetection(t *testing.T) {
	c := New(5)
	id := uuid.New()

	text := "Figure 3. Cross-section of the load-bearing wall assembly."
	chunks := c.Split(id, text)

	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkFigure, chunks[0].Type)
}

func TestShortFragmentsMerge(t *testing.T) {
	c := New(50)
	id := uuid.New()

	text := "A full paragraph with enough characters to clear the minimum length check.\n\nTiny.\n\nAnother full paragraph with enough characters to clear the minimum length."
	chunks := c.Split(id, text)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "Tiny.")
}

func TestShortOpeningFragmentMergesForward(t *testing.T) {
	c := New(50)
	id := uuid.New()

	text := "Intro.\n\nA full paragraph with enough characters to clear the minimum length check."
	chunks := c.Split(id, text)

	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Intro."))
	assert.Equal(t, 0, chunks[0].Position)
}

func TestSectionAndPageLocators(t *testing.T) {
	c := New(10)
	id := uuid.New()

	text := "4.2 Wall requirements here described in detail.\n\nMinimum wall thickness shall be 200mm for exterior walls.\f\nContent on the following page with more details about insulation."
	chunks := c.Split(id, text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "4.2 Wall requirements here described in detail.", chunks[0].Section)
	last := chunks[len(chunks)-1]
	assert.Equal(t, 2, last.Page)
}

func TestFormFeedMidLineSplitsPages(t *testing.T) {
	c := New(10)
	id := uuid.New()

	text := "Closing words of page one stay on their own page.\fOpening words of page two follow immediately after."
	chunks := c.Split(id, text)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "page one")
	assert.Equal(t, 1, chunks[0].Page)
	assert.Contains(t, chunks[1].Content, "page two")
	assert.Equal(t, 2, chunks[1].Page)
}

func TestMalformedTextNeverPanics(t *testing.T) {
	c := New(50)
	id := uuid.New()

	inputs := []string{
		"\x00\x01\x02 garbage bytes mixed with text long enough to keep",
		strings.Repeat("|", 500),
		"\f\f\f",
		strings.Repeat("word ", 10000),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { c.Split(id, in) })
	}
}
