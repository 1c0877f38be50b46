package source

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover walks a directory and returns the record files matching the
// include patterns, minus the excluded ones, sorted for deterministic
// processing order. Patterns are doublestar globs relative to root.
func Discover(root string, includes, excludes []string) ([]string, error) {
	if len(includes) == 0 {
		includes = []string{"**/*.jsonl"}
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if relPath != "." && matchesAny(excludes, relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAny(includes, relPath) && !matchesAny(excludes, relPath) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
