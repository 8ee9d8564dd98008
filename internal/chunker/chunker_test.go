package chunker

import (
	"strings"
	"testing"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkReconstruction(t *testing.T) {
	lines := []string{
		"the door leaf consists of a solid timber core with steel facings.",
		"intumescent seals are fitted to the head and both jambs.",
		"the frame is supplied pre-machined for standard hinge positions.",
		"glazed apertures are available up to the maximum tested size.",
	}
	page := Page{Number: 1, Text: strings.Join(lines, "\n")}

	pieces := ChunkPages([]Page{page}, Options{MinTokens: 1, MaxTokens: 1000})
	require.NotEmpty(t, pieces)

	var texts []string
	for i, p := range pieces {
		assert.Equal(t, i, p.Index)
		texts = append(texts, p.Text)
	}
	assert.Equal(t, strings.Join(lines, "\n"), strings.Join(texts, "\n"))
}

func TestFireTestBlockIsAtomic(t *testing.T) {
	lines := []string{
		"the assembly was subjected to a fire resistance test to EN 1634-1.",
		"the specimen comprised a single-leaf door set in a rigid frame.",
		"integrity was maintained for the full duration of the exposure.",
		"the furnace followed the standard time-temperature curve throughout.",
	}
	page := Page{Number: 1, Text: strings.Join(lines, "\n")}

	// Block is well above the 20-token ceiling yet must not be split.
	pieces := ChunkPages([]Page{page}, Options{MinTokens: 1, MaxTokens: 20})
	require.Len(t, pieces, 1)
	assert.True(t, pieces[0].FireTest)
	assert.Equal(t, strings.Join(lines, "\n"), pieces[0].Text)
}

func TestTableLinesAreIsolated(t *testing.T) {
	text := strings.Join([]string{
		"the range covers single and double leaf configurations.",
		"rating | core thickness | max width | max height",
		"int30 | 44 mm | 926 mm | 2040 mm",
		"certification documents are available on request from the factory.",
	}, "\n")

	pieces := ChunkPages([]Page{{Number: 1, Text: text}}, Options{MinTokens: 1, MaxTokens: 1000})
	require.Len(t, pieces, 3)

	assert.Equal(t, domain.ChunkTypeText, pieces[0].Type)
	assert.Equal(t, domain.ChunkTypeTable, pieces[1].Type)
	assert.Equal(t, domain.ChunkTypeText, pieces[2].Type)

	assert.Contains(t, pieces[1].Text, "core thickness")
	assert.NotContains(t, pieces[0].Text, "|")
	assert.NotContains(t, pieces[2].Text, "|")
}

func TestSectionHeaderStartsNewBlock(t *testing.T) {
	text := strings.Join([]string{
		"general notes about handling and storage on site.",
		"INSTALLATION",
		"fix the frame plumb and square using the packers provided.",
	}, "\n")

	pieces := ChunkPages([]Page{{Number: 1, Text: text}}, Options{MinTokens: 1, MaxTokens: 1000})
	require.Len(t, pieces, 2)
	assert.Equal(t, "general notes about handling and storage on site.", pieces[0].Text)
	assert.True(t, strings.HasPrefix(pieces[1].Text, "INSTALLATION"))
}

func TestShortBlocksAreDroppedAsNoise(t *testing.T) {
	pieces := ChunkPages([]Page{{Number: 1, Text: "page 3 of 12"}}, Options{MinTokens: 50, MaxTokens: 500})
	assert.Empty(t, pieces)
}

func TestOversizedBlockSplitsAtSentenceBoundaries(t *testing.T) {
	sentences := []string{
		"the leaf is manufactured from a high density particleboard core.",
		"facings are bonded under pressure in a heated platen press.",
		"edges are lipped in hardwood matched to the specified veneer.",
		"all leaves are supplied factory sealed on all six faces.",
	}
	line := strings.Join(sentences, " ")

	pieces := ChunkPages([]Page{{Number: 2, Text: line}}, Options{MinTokens: 1, MaxTokens: 20})
	require.Greater(t, len(pieces), 1)

	var texts []string
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p.Text)/4, 20+len(sentences[0])/4)
		assert.Equal(t, 2, p.Page)
		texts = append(texts, p.Text)
	}
	assert.Equal(t, line, strings.Join(texts, " "))
}

func TestChunkIndexIsMonotonicAcrossPages(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "first page content describing the product range in detail."},
		{Number: 2, Text: "second page content covering maintenance and inspection."},
	}

	pieces := ChunkPages(pages, Options{MinTokens: 1, MaxTokens: 1000})
	require.Len(t, pieces, 2)
	assert.Equal(t, 0, pieces[0].Index)
	assert.Equal(t, 1, pieces[1].Index)
	assert.Equal(t, 1, pieces[0].Page)
	assert.Equal(t, 2, pieces[1].Page)
}
