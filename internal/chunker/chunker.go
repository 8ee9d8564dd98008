// Package chunker splits per-page document text into retrieval-sized,
// structure-aware chunks for downstream vector indexing.
package chunker

import (
	"strings"

	"github.com/karsten/pillarcat/internal/domain"
)

// Options controls chunk sizing. Token counts are estimated as
// character count / 4.
type Options struct {
	// MinTokens is the noise floor; flushed blocks below it are dropped.
	MinTokens int
	// MaxTokens is the flush ceiling for non-atomic blocks.
	MaxTokens int
}

// DefaultOptions are tuned for datasheet and certificate text.
func DefaultOptions() Options {
	return Options{MinTokens: 50, MaxTokens: 500}
}

// Page is one page of extracted document text.
type Page struct {
	Number int
	Text   string
}

// Piece is one emitted chunk before persistence. Index is monotonic across
// all pages of a document.
type Piece struct {
	Text     string
	Type     domain.ChunkType
	Page     int
	Index    int
	FireTest bool
}

// Chunker carries the per-document state: the running block buffer and the
// global chunk index.
type Chunker struct {
	opts Options

	pieces []Piece
	index  int

	block     []string
	blockType domain.ChunkType
	fireTest  bool
}

// New creates a Chunker. Zero or negative option values fall back to
// DefaultOptions.
func New(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.MinTokens <= 0 {
		opts.MinTokens = def.MinTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	return &Chunker{opts: opts, blockType: domain.ChunkTypeText}
}

// ChunkPages runs the chunker over all pages of a document.
func ChunkPages(pages []Page, opts Options) []Piece {
	c := New(opts)
	for _, p := range pages {
		c.chunkPage(p)
	}
	return c.pieces
}

func (c *Chunker) chunkPage(page Page) {
	for _, line := range strings.Split(page.Text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case isTableLine(line):
			if c.blockType != domain.ChunkTypeTable {
				c.flush(page.Number)
				c.blockType = domain.ChunkTypeTable
			}
		case isSectionHeader(line):
			c.flush(page.Number)
			c.blockType = domain.ChunkTypeText
		case c.blockType == domain.ChunkTypeTable:
			// Table ended; plain text starts a fresh block.
			c.flush(page.Number)
			c.blockType = domain.ChunkTypeText
		}

		if isFireTestLine(line) {
			c.fireTest = true
		}

		c.block = append(c.block, line)

		// Fire-test blocks are atomic; a split mid-configuration would
		// separate a test standard from its measured results.
		if !c.fireTest && estimateTokens(c.blockText()) > c.opts.MaxTokens {
			c.flush(page.Number)
		}
	}
	// Blocks never span pages.
	c.flush(page.Number)
}

func (c *Chunker) blockText() string {
	return strings.Join(c.block, "\n")
}

func (c *Chunker) flush(page int) {
	if len(c.block) == 0 {
		return
	}
	text := c.blockText()
	fireTest := c.fireTest
	blockType := c.blockType

	c.block = nil
	c.fireTest = false
	c.blockType = domain.ChunkTypeText

	if estimateTokens(text) < c.opts.MinTokens {
		return
	}

	if !fireTest && estimateTokens(text) > c.opts.MaxTokens {
		for _, sub := range splitBySentence(text, c.opts.MaxTokens) {
			c.emit(sub, blockType, page, fireTest)
		}
		return
	}
	c.emit(text, blockType, page, fireTest)
}

func (c *Chunker) emit(text string, blockType domain.ChunkType, page int, fireTest bool) {
	c.pieces = append(c.pieces, Piece{
		Text:     text,
		Type:     blockType,
		Page:     page,
		Index:    c.index,
		FireTest: fireTest,
	})
	c.index++
}

func estimateTokens(text string) int {
	return len(text) / 4
}

// splitBySentence breaks oversized text at sentence boundaries, growing a
// sub-block until the next sentence would push it past maxTokens.
func splitBySentence(text string, maxTokens int) []string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	for _, s := range sentences {
		if current.Len() > 0 && estimateTokens(current.String()+" "+s) > maxTokens {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// splitSentences splits on terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
			start = i + 2
		}
	}
	if start < len(text) {
		tail := strings.TrimSpace(text[start:])
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}
