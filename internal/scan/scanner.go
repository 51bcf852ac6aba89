// Package scan locates methods, branches, selectors and case labels in Java
// and Kotlin source text without a compiler front end.
//
// Both scanners are approximate by construction. They never fail on
// malformed input; the worst case for a file is zero events.
package scan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/solatis/btmgen/internal/types"
)

// Options are shared by both scanners.
type Options struct {
	Packages PackageFilter
	// EntryExit emits one ENTRY and one EXIT event per method.
	EntryExit bool
}

// Scanner extracts events from one source file.
type Scanner interface {
	Language() types.Language
	// Scan returns the events of src. path is used for naming only.
	Scan(path, src string) ([]types.ScanEvent, error)
}

// PackageFilter keeps packages that start with any include prefix and with
// no exclude prefix. An empty include list admits every package.
type PackageFilter struct {
	Include []string
	Exclude []string
}

// Allows reports whether pkg passes the filter. With includes configured, the
// default package never passes.
func (f PackageFilter) Allows(pkg string) bool {
	for _, ex := range f.Exclude {
		if ex != "" && strings.HasPrefix(pkg, ex) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if strings.HasPrefix(pkg, in) {
			return true
		}
	}
	return false
}

// LanguageOf selects a language by file extension.
func LanguageOf(path string) (types.Language, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".java":
		return types.LanguageJava, nil
	case ".kt":
		return types.LanguageKotlin, nil
	}
	return 0, fmt.Errorf("%w: %s", types.ErrUnsupportedLanguage, path)
}

// New returns the scanner for lang.
func New(lang types.Language, opts Options) (Scanner, error) {
	switch lang {
	case types.LanguageJava:
		return &JavaScanner{opts: opts}, nil
	case types.LanguageKotlin:
		return &KotlinScanner{opts: opts}, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedLanguage, lang)
}

// ForPath returns the scanner matching path's extension.
func ForPath(path string, opts Options) (Scanner, error) {
	lang, err := LanguageOf(path)
	if err != nil {
		return nil, err
	}
	return New(lang, opts)
}

// guard converts a panic in fn into a file-level error.
func guard(path string, fn func() []types.ScanEvent) (events []types.ScanEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = fmt.Errorf("failed to scan %s: recovered: %v", path, r)
		}
	}()
	return fn(), nil
}
