// Package scanner walks a project tree and collects the PHP units to analyse.
// It respects .blindtaintignore files with gitignore semantics.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultIgnoreFileName is the per-directory ignore file.
const DefaultIgnoreFileName = ".blindtaintignore"

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks (within root only)
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string   // Name of the ignore file
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: DefaultIgnoreFileName,
		DefaultExcludes: []string{
			"node_modules",
			".git",
			".hg",
			".svn",
			"CVS",
			".idea",
			".vscode",
			"vendor",
			"cache",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = DefaultIgnoreFileName
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans root and returns the PHP files found, in lexical
// path order.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	var patterns []gitignore.Pattern
	var files []FileInfo

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		segments := splitSegments(relPath)

		if relPath == "." {
			patterns = append(patterns, s.loadIgnorePatterns(path, nil)...)
			return nil
		}

		if s.opts.SkipHidden && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || ignored(patterns, segments, true) {
				return filepath.SkipDir
			}
			patterns = append(patterns, s.loadIgnorePatterns(path, segments)...)
			return nil
		}

		if !IsPHP(filepath.Ext(path)) || ignored(patterns, segments, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				return nil
			}
			fi, err = s.resolveSymlink(absRoot, path)
			if err != nil || fi == nil {
				return nil
			}
		}

		files = append(files, FileInfo{
			Path:     strings.Join(segments, "/"),
			FullPath: path,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return files, nil
}

// resolveSymlink returns the target's info when it is a regular file inside
// root, or nil otherwise.
func (s *Scanner) resolveSymlink(root, path string) (fs.FileInfo, error) {
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	realAbs, err := filepath.Abs(realPath)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(realAbs, root+string(filepath.Separator)) {
		return nil, nil
	}
	info, err := os.Stat(realAbs)
	if err != nil || info.IsDir() {
		return nil, err
	}
	return info, nil
}

// isHidden checks if a file or directory name indicates it's hidden.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isDefaultExcluded checks if the name matches default exclusion patterns.
func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns parses the ignore file in dir. Patterns are scoped to
// domain, the directory's path segments relative to the scan root.
func (s *Scanner) loadIgnorePatterns(dir string, domain []string) []gitignore.Pattern {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		return nil
	}
	defer file.Close()

	var patterns []gitignore.Pattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}
	return patterns
}

// ignored applies gitignore semantics: later patterns override earlier
// ones, and negations re-include.
func ignored(patterns []gitignore.Pattern, segments []string, isDir bool) bool {
	if len(patterns) == 0 {
		return false
	}
	return gitignore.NewMatcher(patterns).Match(segments, isDir)
}

func splitSegments(relPath string) []string {
	if relPath == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(relPath), "/")
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
