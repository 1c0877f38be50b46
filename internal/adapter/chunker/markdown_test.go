package chunker

import (
	"reflect"
	"strings"
	"testing"

	"kb/internal/domain"
)

func testDoc(content string) domain.Document {
	return domain.Document{
		ID:       "docs:test",
		Version:  "latest",
		Checksum: "c1",
		Content:  content,
	}
}

func TestSplitSingleSection(t *testing.T) {
	c := NewMarkdownChunker(2000, 200, 0)

	chunks, err := c.Split(testDoc("# Title\n\nHello world."))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !reflect.DeepEqual(chunks[0].HeadingPath, []string{"Title"}) {
		t.Errorf("expected heading path [Title], got %v", chunks[0].HeadingPath)
	}
	if chunks[0].Content != "Hello world." {
		t.Errorf("unexpected content: %q", chunks[0].Content)
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected chunk index 0, got %d", chunks[0].Index)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	c := NewMarkdownChunker(2000, 500, 80)

	chunks, err := c.Split(testDoc(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty content, got %d", len(chunks))
	}
}

func TestSplitNoHeadings(t *testing.T) {
	c := NewMarkdownChunker(2000, 500, 80)

	chunks, err := c.Split(testDoc("Plain text without any headings at all."))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0].HeadingPath) != 0 {
		t.Errorf("expected empty heading path, got %v", chunks[0].HeadingPath)
	}
}

func TestSplitHeadingHierarchy(t *testing.T) {
	content := `# Guide

Intro text.

## Install

Install text.

### Linux

Linux text.

## Usage

Usage text.
`
	c := NewMarkdownChunker(2000, 500, 80)

	chunks, err := c.Split(testDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	wantPaths := [][]string{
		{"Guide"},
		{"Guide", "Install"},
		{"Guide", "Install", "Linux"},
		{"Guide", "Usage"},
	}
	if len(chunks) != len(wantPaths) {
		t.Fatalf("expected %d chunks, got %d", len(wantPaths), len(chunks))
	}
	for i, want := range wantPaths {
		if !reflect.DeepEqual(chunks[i].HeadingPath, want) {
			t.Errorf("chunk %d: expected heading path %v, got %v", i, want, chunks[i].HeadingPath)
		}
		if chunks[i].Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, chunks[i].Index)
		}
	}
}

func TestSplitIgnoresHeadingsInCodeFences(t *testing.T) {
	content := "# Title\n\nBefore.\n```\n# not a heading\n```\nAfter."
	c := NewMarkdownChunker(2000, 500, 80)

	chunks, err := c.Split(testDoc(content))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "# not a heading") {
		t.Error("fenced heading marker should stay in section body")
	}
}

func TestSplitSectionAtBoundaryNotSubSplit(t *testing.T) {
	body := strings.Repeat("x", 100)
	c := NewMarkdownChunker(100, 30, 0)

	chunks, err := c.Split(testDoc("# T\n\n" + body))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("section exactly at max_section_chars must not be sub-split, got %d chunks", len(chunks))
	}
}

func TestSplitOversizedSection(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("word word word word word word word word word word\n\n")
	}
	c := NewMarkdownChunker(200, 120, 20)

	chunks, err := c.Split(testDoc("# Long\n\n" + sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected oversized section to be sub-split, got %d chunks", len(chunks))
	}
	for i, ch := range chunks {
		if len([]rune(ch.Content)) > 120 {
			t.Errorf("chunk %d exceeds chunk_size: %d chars", i, len([]rune(ch.Content)))
		}
		if !reflect.DeepEqual(ch.HeadingPath, []string{"Long"}) {
			t.Errorf("chunk %d lost its heading path: %v", i, ch.HeadingPath)
		}
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	content := `# A

Some introduction paragraph that runs on for a while to give the
splitter something to work with when sections exceed the limit.

## B

More text here. And a bit more text to pad the section out.
`
	c := NewMarkdownChunker(80, 60, 10)
	doc := testDoc(content)

	first, err := c.Split(doc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Split(doc)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d: non-deterministic ID %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestChunkIDDependsOnInputs(t *testing.T) {
	c := NewMarkdownChunker(2000, 500, 80)

	base, _ := c.Split(testDoc("# T\n\nSame content."))

	changed := testDoc("# T\n\nDifferent content.")
	other, _ := c.Split(changed)
	if base[0].ID == other[0].ID {
		t.Error("content change must change the chunk ID")
	}

	versioned := testDoc("# T\n\nSame content.")
	versioned.Version = "v2"
	other, _ = c.Split(versioned)
	if base[0].ID == other[0].ID {
		t.Error("version change must change the chunk ID")
	}

	renamed := testDoc("# T\n\nSame content.")
	renamed.ID = "docs:other"
	other, _ = c.Split(renamed)
	if base[0].ID == other[0].ID {
		t.Error("doc id change must change the chunk ID")
	}
}

func TestChunkIDUniqueness(t *testing.T) {
	c := NewMarkdownChunker(50, 40, 5)

	var sb strings.Builder
	sb.WriteString("# T\n\n")
	for i := 0; i < 20; i++ {
		sb.WriteString("repeated paragraph body text\n\n")
	}

	chunks, err := c.Split(testDoc(sb.String()))
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, ch := range chunks {
		if seen[ch.ID] {
			t.Errorf("duplicate chunk ID: %s", ch.ID)
		}
		seen[ch.ID] = true
	}
}
