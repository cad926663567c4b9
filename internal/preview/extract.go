// Package preview turns uploaded PDFs into plain text for the note viewer and
// caches the result per note.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

var errEmptyPDF = errors.New("empty pdf")

// ErrTooLarge is returned when the reader holds more than the byte limit.
var ErrTooLarge = errors.New("pdf exceeds preview limit")

// Result is the extracted text of one document.
type Result struct {
	Text      string `json:"text"`
	Pages     int    `json:"pages"`
	Truncated bool   `json:"truncated"`
}

// ExtractText reads PDF bytes and returns plain text of at most maxPages
// pages using ledongthuc/pdf. maxPages <= 0 means all pages.
func ExtractText(data []byte, maxPages int) (Result, error) {
	if len(data) == 0 {
		return Result{}, errEmptyPDF
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	last := total
	if maxPages > 0 && maxPages < total {
		last = maxPages
	}
	var builder strings.Builder
	for page := 1; page <= last; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return Result{}, fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return Result{Text: builder.String(), Pages: total, Truncated: last < total}, nil
}

// ExtractFromReader drains r, stopping at limit bytes, before handing it to
// ExtractText.
func ExtractFromReader(r io.Reader, limit int64, maxPages int) (Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Result{}, fmt.Errorf("read pdf: %w", err)
	}
	if int64(len(data)) > limit {
		return Result{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return ExtractText(data, maxPages)
}
