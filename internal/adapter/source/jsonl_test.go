package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJSONLSourceStreams(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docs.jsonl",
		`{"id":"docs:a","title":"A","checksum":"c1","content":"alpha"}
{"id":"docs:b","title":"B","checksum":"c2","content":"beta"}
`)

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	doc, err := src.Next()
	if err != nil || doc.ID != "docs:a" {
		t.Fatalf("first record = %+v, %v", doc, err)
	}
	doc, err = src.Next()
	if err != nil || doc.ID != "docs:b" {
		t.Fatalf("second record = %+v, %v", doc, err)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestJSONLSourceSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docs.jsonl",
		"\n{\"id\":\"docs:a\",\"content\":\"x\"}\n\n\n")

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	doc, err := src.Next()
	if err != nil || doc.ID != "docs:a" {
		t.Fatalf("record = %+v, %v", doc, err)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestJSONLSourceMalformedRecordIsRecoverable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docs.jsonl",
		`{"id":"docs:a","content":"x"}
this is not json
{"id":"docs:b","content":"y"}
`)

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if doc, err := src.Next(); err != nil || doc.ID != "docs:a" {
		t.Fatalf("first record = %+v, %v", doc, err)
	}

	_, err = src.Next()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected record error for malformed line, got %v", err)
	}
	if !strings.Contains(err.Error(), "docs.jsonl:2") {
		t.Errorf("record error should carry file and line, got %q", err)
	}

	// The stream continues past the bad line.
	if doc, err := src.Next(); err != nil || doc.ID != "docs:b" {
		t.Fatalf("record after error = %+v, %v", doc, err)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestJSONLSourceUnreadableFileAdvances(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.jsonl")
	good := writeFile(t, dir, "ok.jsonl", `{"id":"docs:a","content":"x"}`+"\n")

	src, err := NewJSONLSource(missing, good)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := src.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected open error for missing file, got %v", err)
	}

	// The failed file must not be retried; the stream moves on.
	doc, err := src.Next()
	if err != nil || doc.ID != "docs:a" {
		t.Fatalf("record after open error = %+v, %v", doc, err)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestJSONLSourceUnreadableOnlyFileReachesEOF(t *testing.T) {
	src, err := NewJSONLSource(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := src.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected open error, got %v", err)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after failed file, got %v", err)
	}
}

func TestJSONLSourceGlobOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.jsonl", `{"id":"docs:b","content":"y"}`+"\n")
	writeFile(t, dir, "a.jsonl", `{"id":"docs:a","content":"x"}`+"\n")

	src, err := NewJSONLSource(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	first, _ := src.Next()
	second, _ := src.Next()
	if first.ID != "docs:a" || second.ID != "docs:b" {
		t.Errorf("glob matches not read in sorted order: %s, %s", first.ID, second.ID)
	}
}

func TestJSONLSourceNoMatches(t *testing.T) {
	if _, err := NewJSONLSource(filepath.Join(t.TempDir(), "*.jsonl")); err == nil {
		t.Fatal("expected error when no files match")
	}
}

func TestJSONLSourceFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docs.jsonl",
		`{"id":"docs:a","content":"x","frontmatter":{"sidebar_position":2,"tags":["intro"]}}`+"\n")

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	doc, err := src.Next()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Frontmatter["sidebar_position"] == nil {
		t.Error("frontmatter values should survive decoding")
	}
}
