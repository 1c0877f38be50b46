package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"kb/internal/domain"
)

// JSONLSource streams cleaned document records from newline-delimited
// JSON files, one record at a time, without materializing the
// collection. Patterns may be literal paths or doublestar globs.
type JSONLSource struct {
	paths   []string
	idx     int
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// maxRecordBytes bounds a single JSONL line; cleaned documents are
// page-sized, far below this.
const maxRecordBytes = 16 * 1024 * 1024

// NewJSONLSource resolves the given path patterns. Matched files are
// read in sorted order for a deterministic document stream.
func NewJSONLSource(patterns ...string) (*JSONLSource, error) {
	var paths []string
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			paths = append(paths, pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files match %v", patterns)
	}
	sort.Strings(paths)

	return &JSONLSource{paths: paths}, nil
}

// Next returns the next document, io.EOF at end of stream, or a
// record-level error for a malformed line. After a record error the
// caller may keep pulling; the stream continues with the next line.
func (s *JSONLSource) Next() (domain.Document, error) {
	for {
		if s.scanner == nil {
			if s.idx >= len(s.paths) {
				return domain.Document{}, io.EOF
			}
			path := s.paths[s.idx]
			s.idx++
			f, err := os.Open(path)
			if err != nil {
				return domain.Document{}, fmt.Errorf("failed to open %s: %w", path, err)
			}
			s.file = f
			s.scanner = bufio.NewScanner(f)
			s.scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
			s.line = 0
		}

		for s.scanner.Scan() {
			s.line++
			line := strings.TrimSpace(s.scanner.Text())
			if line == "" {
				continue
			}
			var doc domain.Document
			if err := json.Unmarshal([]byte(line), &doc); err != nil {
				return domain.Document{}, fmt.Errorf("malformed record at %s:%d: %w", s.file.Name(), s.line, err)
			}
			return doc, nil
		}

		err := s.scanner.Err()
		s.file.Close()
		s.file = nil
		s.scanner = nil
		if err != nil {
			return domain.Document{}, err
		}
	}
}

// Close releases the currently open file, if any.
func (s *JSONLSource) Close() error {
	s.scanner = nil
	s.idx = len(s.paths)
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
