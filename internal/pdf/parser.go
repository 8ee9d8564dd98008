// Package pdf extracts plain text from PDF documents.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageText is the extracted text of one page.
type PageText struct {
	Number int
	Text   string
}

// Document is the parsed content of one PDF file. Pages holds only pages
// that yielded text; PageCount is the physical page count of the file.
type Document struct {
	Pages     []PageText
	PageCount int
}

// Text returns the whole document text with pages separated by blank lines.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// ExtractText parses a PDF from memory and returns its plain text page by
// page. Pages that cannot be decoded are skipped; an error is returned only
// when the file itself is unreadable.
func ExtractText(data []byte) (doc *Document, err error) {
	// The underlying parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	doc = &Document{PageCount: reader.NumPage()}
	for i := 1; i <= doc.PageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		doc.Pages = append(doc.Pages, PageText{Number: i, Text: text})
	}

	return doc, nil
}
