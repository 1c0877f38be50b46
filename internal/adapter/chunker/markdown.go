package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"kb/internal/domain"
)

// MarkdownChunker splits cleaned markdown documents structure-first:
// sections are cut at H1-H4 headings, and any section longer than
// maxSectionChars is further split greedily at chunkSize with
// chunkOverlap characters of redundancy between consecutive pieces.
//
// The split path contains no randomness and no map iteration, so the
// same input always produces the same chunk IDs in the same order.
type MarkdownChunker struct {
	maxSectionChars int
	chunkSize       int
	chunkOverlap    int
}

// NewMarkdownChunker creates a new MarkdownChunker.
func NewMarkdownChunker(maxSectionChars, chunkSize, chunkOverlap int) *MarkdownChunker {
	return &MarkdownChunker{
		maxSectionChars: maxSectionChars,
		chunkSize:       chunkSize,
		chunkOverlap:    chunkOverlap,
	}
}

// section is one heading-delimited stretch of the document.
type section struct {
	headingPath []string
	text        string
}

// Split splits a document into chunks. Embeddings are left empty and
// filled in by the index builder.
func (c *MarkdownChunker) Split(doc domain.Document) ([]domain.Chunk, error) {
	if doc.Content == "" {
		return nil, nil
	}

	var chunks []domain.Chunk
	index := 0

	for _, sec := range splitByHeadings(doc.Content) {
		// Strictly greater than: a section exactly at the boundary
		// stays whole.
		if len([]rune(sec.text)) > c.maxSectionChars {
			for _, piece := range c.splitBySize(sec.text) {
				chunks = append(chunks, newChunk(doc, piece, sec.headingPath, index))
				index++
			}
		} else {
			chunks = append(chunks, newChunk(doc, sec.text, sec.headingPath, index))
			index++
		}
	}

	return chunks, nil
}

// splitByHeadings cuts content at H1-H4 headings, tagging each section
// with its heading path. Heading markers inside fenced code blocks are
// ignored. Heading lines themselves are not part of section text.
func splitByHeadings(content string) []section {
	var sections []section
	headings := make([]string, 4) // active H1..H4 titles
	var body []string
	inFence := false

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if text == "" {
			return
		}
		var path []string
		for _, h := range headings {
			if h != "" {
				path = append(path, h)
			}
		}
		sections = append(sections, section{headingPath: path, text: text})
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			body = append(body, line)
			continue
		}

		if level, title, ok := parseHeading(trimmed); ok && !inFence {
			flush()
			headings[level-1] = title
			for i := level; i < len(headings); i++ {
				headings[i] = ""
			}
			continue
		}

		body = append(body, line)
	}
	flush()

	return sections
}

// parseHeading reports whether a trimmed line is an H1-H4 ATX heading.
// Deeper headings stay in the section body.
func parseHeading(line string) (level int, title string, ok bool) {
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level < 1 || level > 4 {
		return 0, "", false
	}
	if level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[level+1:])
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// splitBySize splits oversized section text greedily: each piece is at
// most chunkSize characters, cut preferentially at a paragraph break,
// then a newline, then a space. Consecutive pieces share chunkOverlap
// characters of context.
func (c *MarkdownChunker) splitBySize(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
				pieces = append(pieces, piece)
			}
			break
		}

		cut := findBreak(runes, start, end)
		if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
			pieces = append(pieces, piece)
		}

		next := cut - c.chunkOverlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return pieces
}

// findBreak returns the cut position in (start, limit], preferring a
// paragraph break, then a line break, then a word boundary, falling
// back to a hard cut at limit.
func findBreak(runes []rune, start, limit int) int {
	for i := limit; i > start+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := limit; i > start; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := limit; i > start; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	return limit
}

// newChunk builds a chunk whose ID is a deterministic hash of
// (doc id, version, heading path, chunk index, content hash), so
// re-chunking unchanged content yields byte-identical IDs.
func newChunk(doc domain.Document, content string, headingPath []string, index int) domain.Chunk {
	contentHash := sha256.Sum256([]byte(content))
	idInput := fmt.Sprintf("%s:%s:%s:%d:%s",
		doc.ID, doc.Version, strings.Join(headingPath, ":"),
		index, hex.EncodeToString(contentHash[:]))
	id := sha256.Sum256([]byte(idInput))

	path := make([]string, len(headingPath))
	copy(path, headingPath)

	return domain.Chunk{
		ID:          hex.EncodeToString(id[:]),
		DocID:       doc.ID,
		Index:       index,
		HeadingPath: path,
		Content:     content,
	}
}
