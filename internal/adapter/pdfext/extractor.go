// Package pdfext extracts page-tagged text from PDF bytes. The core treats
// extraction as a black box behind the Extractor port; this adapter exists
// so the CLI works end to end on real files.
package pdfext

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// Extractor reads PDFs with ledongthuc/pdf and recovers a table of
// contents from the leading pages when one is printed in the text.
type Extractor struct {
	// TOCScanPages bounds how many leading pages are scanned for a
	// printed table of contents.
	TOCScanPages int
}

func New() *Extractor {
	return &Extractor{TOCScanPages: 5}
}

// Extract returns one PageText per page, 1-based, plus any table of
// contents recovered from the text.
func (e *Extractor) Extract(data []byte) ([]domain.PageText, []domain.TOCEntry, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var pages []domain.PageText
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// Unreadable page: keep the page slot so numbering stays
			// monotonic, downstream validation decides what to do.
			text = ""
		}
		pages = append(pages, domain.PageText{Page: i, Text: text})
	}

	toc := parsePrintedTOC(pages, e.TOCScanPages)
	return pages, toc, nil
}

// tocLine matches printed contents lines like
//
//	2.1 Model architecture ...... 14
//	Introduction .............. 3
var tocLine = regexp.MustCompile(`^\s*((?:\d+(?:\.\d+)*\.?\s+)?\S.{1,80}?)\s*\.{2,}\s*(\d{1,4})\s*$`)

// sectionNumber captures the leading numbering of a TOC title, used to
// derive the nesting level.
var sectionNumber = regexp.MustCompile(`^(\d+(?:\.\d+)*)`)

// parsePrintedTOC scans the first few pages for a printed table of
// contents. Returns nil when nothing that looks like one is found.
func parsePrintedTOC(pages []domain.PageText, scanPages int) []domain.TOCEntry {
	var entries []domain.TOCEntry

	for _, pt := range pages {
		if pt.Page > scanPages {
			break
		}
		for _, line := range strings.Split(pt.Text, "\n") {
			m := tocLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			page, err := strconv.Atoi(m[2])
			if err != nil || page <= 0 {
				continue
			}
			title := strings.TrimSpace(m[1])
			entries = append(entries, domain.TOCEntry{
				Title: title,
				Level: tocLevel(title),
				Page:  page,
			})
		}
	}

	// A couple of stray dotted lines is noise, not a contents page.
	if len(entries) < 2 {
		return nil
	}
	return entries
}

func tocLevel(title string) int {
	m := sectionNumber.FindString(title)
	if m == "" {
		return 1
	}
	return strings.Count(m, ".") + 1
}
