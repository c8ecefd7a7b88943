package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/MeKo-Tech/leafscan/internal/imageproc"
	"github.com/MeKo-Tech/leafscan/internal/pdf"
)

// IsLeafletFile reports whether path has an image or PDF extension.
func IsLeafletFile(path string) bool {
	return imageproc.IsSupported(path) || pdf.IsPDF(path)
}

// Discover expands files and directories in args into the leaflet files to
// process. Directories are walked one level deep unless recursive is set.
// Each directory's files are returned in lexical order.
func Discover(args []string, recursive bool, include, exclude []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			found, err := discoverInDirectory(arg, recursive, include, exclude)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		} else if ShouldInclude(arg, include, exclude) {
			files = append(files, arg)
		}
	}
	return files, nil
}

func discoverInDirectory(dir string, recursive bool, include, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if ShouldInclude(path, include, exclude) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// ShouldInclude applies the extension filter, then exclude patterns, then
// include patterns. Patterns match the base name.
func ShouldInclude(path string, include, exclude []string) bool {
	if !IsLeafletFile(path) {
		return false
	}
	if matchesAnyPattern(path, exclude) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchesAnyPattern(path, include)
}

func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
