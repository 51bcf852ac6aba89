package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/solatis/btmgen/internal/types"
)

// IgnoredDirs are directory names never descended into.
var IgnoredDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".idea":        true,
	".vscode":      true,
	".gradle":      true,
	"build":        true,
	"target":       true,
	"out":          true,
	"node_modules": true,
}

// WalkOptions selects which files under a root are scanned.
type WalkOptions struct {
	IncludeJava      bool
	IncludePatterns  []string
	ExcludePatterns  []string
	RespectGitignore bool
}

// SourceFile is one file selected for scanning.
type SourceFile struct {
	Root     string
	Path     string
	Rel      string // slash-separated, relative to Root
	Language types.Language
	Size     int64
}

// LoadGitignore loads .gitignore from root if it exists.
func LoadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}

// Walk lists the Kotlin (and, when enabled, Java) files below root.
// Directory symlinks are not followed and recursion stops at MaxWalkDepth.
// Unreadable subdirectories are skipped.
func Walk(root string, opts WalkOptions) ([]SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	includes, err := globs(opts.IncludePatterns)
	if err != nil {
		return nil, err
	}
	excludes, err := globs(opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	var gi *ignore.GitIgnore
	if opts.RespectGitignore {
		gi = LoadGitignore(root)
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if IgnoredDirs[d.Name()] || strings.Count(rel, "/")+1 > types.MaxWalkDepth {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil || target.IsDir() {
				return nil
			}
		}

		lang, err := LanguageOf(path)
		if err != nil {
			return nil
		}
		if lang == types.LanguageJava && !opts.IncludeJava {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if len(includes) > 0 && !matchAny(includes, rel) {
			return nil
		}
		if matchAny(excludes, rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, SourceFile{
			Root:     root,
			Path:     path,
			Rel:      rel,
			Language: lang,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// ValidateGlobs checks include/exclude patterns. Patterns are slash
// separated and matched against the path relative to the source root with
// doublestar semantics: "**" spans directories, "{a,b}" alternates and
// "[...]" is a character class.
func ValidateGlobs(patterns []string) error {
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" && !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: invalid glob %q", types.ErrInvalidConfig, p)
		}
	}
	return nil
}

func globs(patterns []string) ([]string, error) {
	if err := ValidateGlobs(patterns); err != nil {
		return nil, err
	}
	var out []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
