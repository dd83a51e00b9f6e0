// Package processor splits extracted PDF text into ordered, metadata-tagged
// chunks. Section boundaries from the table of contents are respected when
// present; otherwise fixed-size token windows with overlap are used. The
// split is deterministic so cache keys and chunk IDs are stable across runs.
package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

type Processor struct {
	maxTokens int
	overlap   int
	tokenizer port.Tokenizer
}

func New(maxTokens, overlap int, tokenizer port.Tokenizer) *Processor {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &Processor{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

// ConfigHash identifies the chunking configuration for cache keying.
func (p *Processor) ConfigHash() string {
	data := fmt.Sprintf("chunker:v1;max=%d;overlap=%d", p.maxTokens, p.overlap)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:8])
}

// Process splits the document into ordered chunks.
func (p *Processor) Process(docName, contentHash string, pages []domain.PageText, toc []domain.TOCEntry) ([]domain.Chunk, error) {
	if err := validate(pages); err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	seq := 0

	emit := func(text, section string, page int) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		chunks = append(chunks, domain.Chunk{
			ID:         chunkID(contentHash, seq),
			DocName:    docName,
			Seq:        seq,
			Text:       text,
			Page:       page,
			Section:    section,
			TokenCount: p.tokenizer.CountTokens(text),
		})
		seq++
	}

	if len(toc) > 0 {
		for _, sec := range sections(pages, toc) {
			joined := joinPages(sec.pages)
			if p.tokenizer.CountTokens(joined) <= p.maxTokens {
				emit(joined, sec.title, sec.startPage)
				continue
			}
			// Oversized section: window within it, page by page, so a
			// chunk never spans a page boundary.
			for _, pt := range sec.pages {
				for _, w := range p.window(pt.Text) {
					emit(w, sec.title, pt.Page)
				}
			}
		}
	} else {
		for _, pt := range pages {
			for _, w := range p.window(pt.Text) {
				emit(w, "", pt.Page)
			}
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no extractable text", domain.ErrMalformedInput)
	}

	return chunks, nil
}

func validate(pages []domain.PageText) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: empty document", domain.ErrMalformedInput)
	}
	total := 0
	prev := 0
	for _, pt := range pages {
		if pt.Page < prev {
			return fmt.Errorf("%w: page numbering decreases at page %d", domain.ErrMalformedInput, pt.Page)
		}
		prev = pt.Page
		total += len(strings.TrimSpace(pt.Text))
	}
	if total == 0 {
		return fmt.Errorf("%w: empty document", domain.ErrMalformedInput)
	}
	return nil
}

type section struct {
	title     string
	startPage int
	pages     []domain.PageText
}

// sections assigns pages to TOC entries by page range. The last section
// runs to the end of the document; pages before the first entry belong to
// an unnamed front-matter section only if they carry text.
func sections(pages []domain.PageText, toc []domain.TOCEntry) []section {
	var result []section

	if len(toc) > 0 && pages[0].Page < toc[0].Page {
		front := pagesInRange(pages, pages[0].Page, toc[0].Page-1)
		if hasText(front) {
			result = append(result, section{title: "", startPage: pages[0].Page, pages: front})
		}
	}

	for i, entry := range toc {
		endPage := pages[len(pages)-1].Page
		if i+1 < len(toc) {
			// A section ends where the next one starts; a boundary page
			// belongs to the later section to keep regions contiguous.
			endPage = toc[i+1].Page - 1
			if endPage < entry.Page {
				endPage = entry.Page
			}
		}
		secPages := pagesInRange(pages, entry.Page, endPage)
		if !hasText(secPages) {
			continue
		}
		result = append(result, section{title: entry.Title, startPage: entry.Page, pages: secPages})
	}

	return result
}

func pagesInRange(pages []domain.PageText, from, to int) []domain.PageText {
	var out []domain.PageText
	for _, pt := range pages {
		if pt.Page >= from && pt.Page <= to {
			out = append(out, pt)
		}
	}
	return out
}

func hasText(pages []domain.PageText) bool {
	for _, pt := range pages {
		if strings.TrimSpace(pt.Text) != "" {
			return true
		}
	}
	return false
}

func joinPages(pages []domain.PageText) string {
	var b strings.Builder
	for _, pt := range pages {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(pt.Text))
	}
	return b.String()
}

// window splits text into token-bounded chunks with overlap. Segments are
// paragraph and sentence fragments; a segment is never split unless it
// alone exceeds the budget.
func (p *Processor) window(text string) []string {
	segs := segments(text)
	if len(segs) == 0 {
		return nil
	}

	var out []string
	start := 0

	for start < len(segs) {
		end := start
		tokens := 0
		var b strings.Builder

		for end < len(segs) {
			segTokens := p.tokenizer.CountTokens(segs[end])
			// The window's first segment is taken whole even when it alone
			// exceeds the budget, rather than cut mid-sentence.
			if tokens > 0 && tokens+segTokens > p.maxTokens {
				break
			}
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(segs[end])
			tokens += segTokens
			end++
		}

		out = append(out, b.String())

		// Walk back from the window end until the overlap token budget is
		// covered, then resume there.
		overlapSegs := 0
		overlapTokens := 0
		for i := end - 1; i > start && overlapTokens < p.overlap; i-- {
			overlapTokens += p.tokenizer.CountTokens(segs[i])
			overlapSegs++
		}
		next := end - overlapSegs
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return out
}

// segments splits text on paragraph breaks, then sentence enders, keeping
// fragments in original order.
func segments(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		start := 0
		runes := []rune(para)
		for i, r := range runes {
			if r == '.' || r == '!' || r == '?' || r == '\n' {
				frag := strings.TrimSpace(string(runes[start : i+1]))
				if frag != "" {
					out = append(out, frag)
				}
				start = i + 1
			}
		}
		if frag := strings.TrimSpace(string(runes[start:])); frag != "" {
			out = append(out, frag)
		}
	}
	return out
}

func chunkID(contentHash string, seq int) string {
	h := contentHash
	if len(h) > 16 {
		h = h[:16]
	}
	return fmt.Sprintf("%s-%04d", h, seq)
}
