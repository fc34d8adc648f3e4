package indexing

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wardlang/wci/internal/config"
)

// Scanner discovers contract files under a workspace root using the
// configured include and exclude glob patterns.
type Scanner struct {
	config *config.Config
}

// NewScanner creates a scanner for the given configuration.
func NewScanner(cfg *config.Config) *Scanner {
	return &Scanner{config: cfg}
}

// Scan walks the workspace root and returns the absolute paths of every
// file matching the include patterns, excludes applied, oversized files
// skipped. Walk errors on individual entries are skipped, not fatal.
func (s *Scanner) Scan(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && s.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.excluded(rel) || !s.included(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > s.config.Index.MaxFileSize {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.config.Exclude {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func (s *Scanner) included(rel string) bool {
	if len(s.config.Include) == 0 {
		return true
	}
	for _, pattern := range s.config.Include {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// ReadForIndex reads a file's content for indexing, rejecting files that
// grew past the size limit between scan and read.
func (s *Scanner) ReadForIndex(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > s.config.Index.MaxFileSize {
		return nil, fmt.Errorf("file %s exceeds size limit (%d > %d bytes)", path, info.Size(), s.config.Index.MaxFileSize)
	}
	return os.ReadFile(path)
}
